package dataset

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"margin-dashboard/internal/models"
)

// Config controls the size and seed of the synthetic dataset.
type Config struct {
	Seed      uint64
	Products  int
	Vendors   int
	Purchases int
}

// Generator builds one immutable synthetic snapshot at construction time and
// serves it for the life of the process. The same seed always produces the
// same dataset.
type Generator struct {
	cfg       Config
	products  []models.Product
	vendors   []models.Vendor
	purchases []models.Purchase
	builtAt   time.Time
}

var regions = map[string][]string{
	"Maharashtra": {"Mumbai", "Pune", "Nagpur"},
	"Karnataka":   {"Bengaluru", "Mysuru", "Hubballi"},
	"Tamil Nadu":  {"Chennai", "Coimbatore", "Madurai"},
	"Gujarat":     {"Ahmedabad", "Surat", "Vadodara"},
	"Delhi":       {"New Delhi"},
	"West Bengal": {"Kolkata", "Howrah"},
}

var (
	productLines = []string{
		"Basmati Rice", "Sunflower Oil", "Toor Dal", "Wheat Flour", "Green Tea",
		"Instant Coffee", "Jaggery Powder", "Turmeric", "Cashew Nuts", "Ghee",
		"Detergent Bar", "Dish Soap", "Hand Wash", "Notebook Pack", "Ball Pens",
		"LED Bulb", "Extension Cord", "Steel Bottle", "Lunch Box", "Floor Cleaner",
	}
	productGrades = []string{"Premium", "Classic", "Economy", "Gold", "Super"}
	vendorNames   = []string{
		"Agarwal", "Bhatia", "Chandra", "Deshmukh", "Eswar", "Fernandes",
		"Gupta", "Hegde", "Iyer", "Joshi", "Kulkarni", "Lakshmi", "Mehta",
		"Nair", "Oberoi", "Patel", "Qureshi", "Rao", "Sharma", "Thakur",
	}
	vendorSuffixes = []string{"Traders", "Distributors", "Agencies", "Enterprises", "& Sons"}
)

// rngReader adapts the seeded generator to io.Reader so uuids stay
// deterministic for a fixed seed.
type rngReader struct {
	r *rand.Rand
}

func (rr rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(rr.r.Uint64())
	}
	return len(p), nil
}

func NewGenerator(cfg Config) *Generator {
	g := &Generator{cfg: cfg, builtAt: time.Now()}
	g.build()
	return g
}

func (g *Generator) build() {
	r := rand.New(rand.NewPCG(g.cfg.Seed, g.cfg.Seed^0x9e3779b97f4a7c15))
	ids := rngReader{r: r}

	newID := func() string {
		return uuid.Must(uuid.NewRandomFromReader(ids)).String()
	}

	states := make([]string, 0, len(regions))
	for s := range regions {
		states = append(states, s)
	}
	// Map iteration order is random per process; sort for determinism.
	for i := 1; i < len(states); i++ {
		for j := i; j > 0 && states[j] < states[j-1]; j-- {
			states[j], states[j-1] = states[j-1], states[j]
		}
	}

	g.products = make([]models.Product, 0, g.cfg.Products)
	// typicalDiscount drives the pricing model below: most purchases cluster
	// at the typical price so a margin mode emerges per product.
	typicalDiscount := make([]float64, 0, g.cfg.Products)
	for i := 0; i < g.cfg.Products; i++ {
		line := productLines[i%len(productLines)]
		grade := productGrades[(i/len(productLines))%len(productGrades)]
		g.products = append(g.products, models.Product{
			ID:           newID(),
			Name:         grade + " " + line,
			SellingPrice: round2(60 + r.Float64()*2940),
		})
		typicalDiscount = append(typicalDiscount, 8+r.Float64()*30)
	}

	g.vendors = make([]models.Vendor, 0, g.cfg.Vendors)
	for i := 0; i < g.cfg.Vendors; i++ {
		name := vendorNames[i%len(vendorNames)]
		suffix := vendorSuffixes[(i/len(vendorNames))%len(vendorSuffixes)]
		g.vendors = append(g.vendors, models.Vendor{
			ID:   newID(),
			Name: name + " " + suffix,
		})
	}

	now := g.builtAt
	g.purchases = make([]models.Purchase, 0, g.cfg.Purchases)
	for i := 0; i < g.cfg.Purchases; i++ {
		pi := r.IntN(len(g.products))
		product := g.products[pi]
		typicalPrice := round2(product.SellingPrice * (1 - typicalDiscount[pi]/100))

		var price float64
		switch roll := r.Float64(); {
		case roll < 0.55:
			// At the typical price exactly; builds the mode and best-price ties.
			price = typicalPrice
		case roll < 0.90:
			// Paying over the typical price, the margin-loss population.
			price = round2(typicalPrice * (1 + 0.02 + r.Float64()*0.10))
		case roll < 0.98:
			price = round2(typicalPrice * (1 - r.Float64()*0.04))
		default:
			// Data anomaly: a near-free buy with an implausible margin.
			price = round2(product.SellingPrice * 0.05)
		}

		state := states[r.IntN(len(states))]
		cities := regions[state]

		g.purchases = append(g.purchases, models.Purchase{
			ID:            newID(),
			ProductID:     product.ID,
			VendorID:      g.vendors[r.IntN(len(g.vendors))].ID,
			Date:          now.AddDate(0, 0, -r.IntN(900)),
			Quantity:      1 + r.IntN(150),
			PurchasePrice: price,
			State:         state,
			City:          cities[r.IntN(len(cities))],
		})
	}
}

func (g *Generator) Products() []models.Product   { return g.products }
func (g *Generator) Vendors() []models.Vendor     { return g.vendors }
func (g *Generator) Purchases() []models.Purchase { return g.purchases }

// Stats describes the snapshot for the admin endpoint.
func (g *Generator) Stats() map[string]any {
	return map[string]any{
		"seed":      g.cfg.Seed,
		"products":  len(g.products),
		"vendors":   len(g.vendors),
		"purchases": len(g.purchases),
		"built_at":  g.builtAt,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
