package memory

import (
	"pos-service/internal/models"
	"pos-service/internal/store"
)

// NewSeeded returns a store holding a small demo catalog
func NewSeeded(opts ...Option) *Store {
	s := New(opts...)

	products := []models.Product{
		{ID: "prd-martillo-azul", Name: "Martillo Azul", Brand: "Stanley", Price: 8500, Stock: 12, Barcodes: []string{"7791234000011"}, Description: "Martillo carpintero 16oz mango de fibra", Category: "Herramientas"},
		{ID: "prd-martillo-rojo", Name: "Martillo Rojo", Brand: "Bahco", Price: 9200, Stock: 6, Barcodes: []string{"7791234000028"}, Description: "Martillo de bola 24oz", Category: "Herramientas"},
		{ID: "prd-destornillador", Name: "Destornillador Phillips", Brand: "Stanley", Price: 2300, Stock: 40, Barcodes: []string{"7791234000035", "779-1234-000-036"}, Description: "Punta PH2 mango ergonomico", Category: "Herramientas"},
		{ID: "prd-alimento-perro", Name: "Alimento Perro Adulto 15kg", Brand: "Dog Chow", Price: 41000, Stock: 8, Barcodes: []string{"7790070000042"}, Description: "Alimento balanceado razas medianas", Category: "Alimentacion"},
		{ID: "prd-alimento-gato", Name: "Alimento Gato 7.5kg", Brand: "Cat Chow", Price: 29500, Stock: 5, Barcodes: []string{"7790070000059"}, Description: "Alimento balanceado gatos adultos", Category: "Alimentacion"},
		{ID: "prd-cinta", Name: "Cinta Aisladora", Brand: "3M", Price: 1200, Stock: 0, Barcodes: []string{"7791234000066"}, Description: "Cinta negra 20m", Category: "Electricidad"},
	}

	for _, p := range products {
		s.Put(store.ProductsCollection, p.ID, store.ProductFields(p))
	}
	return s
}
