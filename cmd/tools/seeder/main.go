package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedInventory(db)
	seedCustomers(db)

	log.Println("Seeding completed successfully!")
}

func seedInventory(db *sql.DB) {
	categories := []struct {
		name        string
		description string
	}{
		{"Dry Goods", "Flour, sugar, rice and other staples"},
		{"Beverages", "Sodas, juices and bottled water"},
		{"Household", "Cleaning and general household supplies"},
	}

	catIDs := map[string]string{}
	for _, c := range categories {
		var id string
		err := db.QueryRow(`
			INSERT INTO categories (name, description) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
			RETURNING id;
		`, c.name, c.description).Scan(&id)
		if err != nil {
			log.Fatalf("Failed to seed category %s: %v", c.name, err)
		}
		catIDs[c.name] = id
	}

	products := []struct {
		category string
		name     string
	}{
		{"Dry Goods", "Maize Flour"},
		{"Dry Goods", "Sugar"},
		{"Beverages", "Soda 500ml"},
		{"Household", "Bar Soap"},
	}

	prodIDs := map[string]string{}
	for _, p := range products {
		var id string
		err := db.QueryRow(`
			INSERT INTO products (category_id, name) VALUES ($1, $2)
			RETURNING id;
		`, catIDs[p.category], p.name).Scan(&id)
		if err != nil {
			log.Fatalf("Failed to seed product %s: %v", p.name, err)
		}
		prodIDs[p.name] = id
	}

	items := []struct {
		product   string
		name      string
		sku       string
		price     int64
		quantity  int32
		threshold int32
	}{
		{"Maize Flour", "Unga 2kg", "DG-UNGA-2KG", 185, 120, 20},
		{"Sugar", "Sukari 1kg", "DG-SUKARI-1KG", 160, 80, 15},
		{"Soda 500ml", "Cola 500ml", "BV-COLA-500", 70, 240, 48},
		{"Bar Soap", "Bar Soap 800g", "HH-SOAP-800", 150, 60, 10},
	}

	for _, it := range items {
		_, err := db.Exec(`
			INSERT INTO items (product_id, name, sku, price, quantity, low_stock_threshold)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING;
		`, prodIDs[it.product], it.name, it.sku, it.price, it.quantity, it.threshold)
		if err != nil {
			log.Fatalf("Failed to seed item %s: %v", it.name, err)
		}
	}
	log.Printf("Seeded %d categories, %d products, %d items", len(categories), len(products), len(items))
}

func seedCustomers(db *sql.DB) {
	customers := []struct {
		name  string
		ctype string
		phone string
		email string
	}{
		{"Wanjiku Kamau", "individual", "254700000001", "wanjiku@example.com"},
		{"Otieno Enterprises", "business", "254711000002", "orders@otieno.co.ke"},
		{"Amina Hassan", "individual", "254722000003", ""},
	}

	for _, c := range customers {
		var email any
		if c.email != "" {
			email = c.email
		}
		_, err := db.Exec(`
			INSERT INTO customers (name, customer_type, phone, email)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING;
		`, c.name, c.ctype, c.phone, email)
		if err != nil {
			log.Fatalf("Failed to seed customer %s: %v", c.name, err)
		}
	}
	log.Printf("Seeded %d customers", len(customers))
}
