package model

// Contact is one data row of the contact table.
type Contact struct {
	// Row is the 1-based table row; the header occupies row 1.
	Row int

	Name     string
	LastName string
	Company  string
	Title    string
	Custom1  string
	Custom2  string

	RawEmail     string
	Email        string
	MultiEmail   bool
	InvalidEmail bool

	Status string
}

// HasEmail reports whether an address could be extracted from the row.
func (c Contact) HasEmail() bool {
	return c.Email != ""
}

// StatusKind parses the status cell of the row.
func (c Contact) StatusKind() StatusKind {
	return ParseStatus(c.Status)
}
