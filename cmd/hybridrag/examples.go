package main

import "github.com/0xcro3dile/hybridrag-go/internal/domain/entities"

// exampleDocuments seed an empty collection when LOAD_EXAMPLE_DATA is set.
func exampleDocuments() []entities.Document {
	return []entities.Document{
		{
			Content:  "BTC(bitcoin) Price is 50$",
			Source:   "BTC(bitcoin) Price is 50$",
			Metadata: map[string]string{"origin": "example"},
		},
	}
}
