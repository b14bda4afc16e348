package model

// DomainCode is a regulatory domain identifier for one band.
type DomainCode uint16

// DomainPair binds the 2.4GHz and 5GHz domains a country maps to.
type DomainPair struct {
	ID       uint16
	Domain2G DomainCode
	Domain5G DomainCode
}
