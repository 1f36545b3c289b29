package memstore

import "github.com/ariefcatur/go-book-marketplace/internal/orders"

// SeedDemo loads a small catalog for STORE_DRIVER=memory runs.
func (s *Store) SeedDemo() {
	original := int64(1500)
	for _, b := range []orders.Book{
		{ID: "book-dune", Title: "Dune", Author: "Frank Herbert", Category: "scifi", Price: 1200, OriginalPrice: &original, Stock: 5, SellerID: "seller-1", Condition: "good"},
		{ID: "book-emma", Title: "Emma", Author: "Jane Austen", Category: "classic", Price: 650, Stock: 2, SellerID: "seller-1", Condition: "fair"},
		{ID: "book-ubik", Title: "Ubik", Author: "Philip K. Dick", Category: "scifi", Price: 900, Stock: 1, SellerID: "seller-2", Condition: "like new"},
	} {
		s.PutBook(b)
	}
	s.PutAddress(orders.Address{ID: "addr-demo", UserID: "buyer-1", FullName: "Demo Buyer", Phone: "555-0100",
		Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"})
}
