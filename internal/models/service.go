package models

type Service struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	NameAR string `json:"name_ar"`
}

var Services = []Service{
	{Code: "haircut", Name: "Haircut", NameAR: "قص شعر"},
	{Code: "beard-trim", Name: "Beard trim", NameAR: "قص لحية"},
	{Code: "haircut-beard", Name: "Haircut + beard", NameAR: "قص شعر + لحية"},
	{Code: "shampoo", Name: "Shampoo", NameAR: "غسيل شعر"},
	{Code: "styling", Name: "Styling", NameAR: "تسريحة"},
}

func LookupService(code string) (Service, bool) {
	for _, svc := range Services {
		if svc.Code == code {
			return svc, true
		}
	}
	return Service{}, false
}

// ServiceLabel returns the Arabic label for a service code. Unknown codes are
// shown as given.
func ServiceLabel(code string) string {
	if svc, ok := LookupService(code); ok {
		return svc.NameAR
	}
	return code
}
