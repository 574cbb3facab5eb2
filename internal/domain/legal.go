package domain

// Domain is a legal subject-matter label from a closed taxonomy.
type Domain string

// Legal domains in classification priority order.
const (
	DomainLabor            Domain = "نظام العمل"
	DomainCriminal         Domain = "النظام الجزائي"
	DomainCommercial       Domain = "النظام التجاري"
	DomainPersonalStatus   Domain = "الأحوال الشخصية"
	DomainCivil            Domain = "النظام المدني"
	DomainJusticePlatform  Domain = "منصة وزارة العدل"
	DomainGrievances       Domain = "ديوان المظالم"
	DomainStandardsQuality Domain = "المواصفات والجودة"
	DomainRealEstate       Domain = "الهيئة العامة للعقار"
)

var domains = []Domain{
	DomainLabor,
	DomainCriminal,
	DomainCommercial,
	DomainPersonalStatus,
	DomainCivil,
	DomainJusticePlatform,
	DomainGrievances,
	DomainStandardsQuality,
	DomainRealEstate,
}

// Domains returns every label in enumeration order. The slice is a copy.
func Domains() []Domain {
	out := make([]Domain, len(domains))
	copy(out, domains)
	return out
}

// IsValid reports whether d belongs to the taxonomy.
func (d Domain) IsValid() bool {
	for _, known := range domains {
		if d == known {
			return true
		}
	}
	return false
}

func (d Domain) String() string { return string(d) }
