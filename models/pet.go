package models

import (
	"errors"
	"fmt"
)

// Pet is one row of the pets table.
type Pet struct {
	ID      int64  `db:"id" json:"id" yaml:"id"`
	Name    string `db:"name" json:"name" yaml:"name" torm:"required,unique"`
	Species string `db:"species" json:"species" yaml:"species" torm:"required"`
	Age     int    `db:"age" json:"age" yaml:"age"`
}

func (*Pet) TableName() string { return "pets" }

func (p *Pet) String() string {
	return fmt.Sprintf("<Pet %s>", p.Name)
}

// Validate rejects values the column types allow but a pet cannot have.
func (p *Pet) Validate() error {
	if p.Age < 0 {
		return errors.New("age cannot be negative")
	}
	return nil
}

// All lists every model the shell exposes, keyed by the name used in statements.
func All() map[string]interface{} {
	return map[string]interface{}{
		"Pet": &Pet{},
	}
}
