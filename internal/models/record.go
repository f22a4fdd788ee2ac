package models

// Canonical field names used by profiles, extractors, and exports.
const (
	FieldBrand       = "brand"
	FieldModel       = "model"
	FieldDescription = "description"
	FieldPrice       = "price"
	FieldDiscount    = "discount"
)

// Fields lists every canonical field in export column order.
var Fields = []string{FieldBrand, FieldModel, FieldDescription, FieldPrice, FieldDiscount}

// Candidate is one raw listing entry lifted from a page before validation.
// Fields that could not be located are absent keys, never empty placeholders.
type Candidate map[string]string

// Record is a validated catalog listing. Price holds a cleaned decimal
// string ("46.90"); Discount keeps the source's signed form ("-30%").
type Record struct {
	Brand       string `json:"brand,omitempty"`
	Model       string `json:"model"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	Discount    string `json:"discount,omitempty"`
}

// Field returns the value of a canonical field by name.
func (r Record) Field(name string) string {
	switch name {
	case FieldBrand:
		return r.Brand
	case FieldModel:
		return r.Model
	case FieldDescription:
		return r.Description
	case FieldPrice:
		return r.Price
	case FieldDiscount:
		return r.Discount
	}
	return ""
}

// SetField assigns a canonical field by name. Unknown names are ignored.
func (r *Record) SetField(name, value string) {
	switch name {
	case FieldBrand:
		r.Brand = value
	case FieldModel:
		r.Model = value
	case FieldDescription:
		r.Description = value
	case FieldPrice:
		r.Price = value
	case FieldDiscount:
		r.Discount = value
	}
}
