package models

// KindCompany имя типа сущности для компаний
const KindCompany = "company"

// Company представляет компанию, на которую могут ссылаться контакты.
type Company struct {
	Website *string `json:"website"` // Website опциональный адрес сайта
	Name    string  `json:"name"`
	Syncable
}

// Clone создает глубокую копию компании
func (c *Company) Clone() *Company {
	cp := *c
	if c.Website != nil {
		website := *c.Website
		cp.Website = &website
	}
	return &cp
}
