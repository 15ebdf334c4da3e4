// Package naics provides the static NAICS code lookup table used to
// validate classifier output and backfill missing descriptions.
package naics

import "strings"

// descriptions maps 6-digit NAICS codes to their official titles. The
// set covers the industries that appear in federal procurement feeds;
// codes outside it are treated as invalid classifier output.
var descriptions = map[string]string{
	"236220": "Commercial and Institutional Building Construction",
	"237110": "Water and Sewer Line and Related Structures Construction",
	"237310": "Highway, Street, and Bridge Construction",
	"238160": "Roofing Contractors",
	"238210": "Electrical Contractors and Other Wiring Installation Contractors",
	"238220": "Plumbing, Heating, and Air-Conditioning Contractors",
	"311999": "All Other Miscellaneous Food Manufacturing",
	"325412": "Pharmaceutical Preparation Manufacturing",
	"332994": "Small Arms, Ordnance, and Ordnance Accessories Manufacturing",
	"333318": "Other Commercial and Service Industry Machinery Manufacturing",
	"334111": "Electronic Computer Manufacturing",
	"334220": "Radio and Television Broadcasting and Wireless Communications Equipment Manufacturing",
	"334290": "Other Communications Equipment Manufacturing",
	"334511": "Search, Detection, Navigation, Guidance, Aeronautical, and Nautical System and Instrument Manufacturing",
	"336411": "Aircraft Manufacturing",
	"336413": "Other Aircraft Parts and Auxiliary Equipment Manufacturing",
	"336611": "Ship Building and Repairing",
	"339112": "Surgical and Medical Instrument Manufacturing",
	"339113": "Surgical Appliance and Supplies Manufacturing",
	"423430": "Computer and Computer Peripheral Equipment and Software Merchant Wholesalers",
	"423450": "Medical, Dental, and Hospital Equipment and Supplies Merchant Wholesalers",
	"441228": "Motorcycle, ATV, and All Other Motor Vehicle Dealers",
	"481212": "Nonscheduled Chartered Freight Air Transportation",
	"484110": "General Freight Trucking, Local",
	"488190": "Other Support Activities for Air Transportation",
	"493110": "General Warehousing and Storage",
	"511210": "Software Publishers",
	"517311": "Wired Telecommunications Carriers",
	"518210": "Data Processing, Hosting, and Related Services",
	"519130": "Internet Publishing and Broadcasting and Web Search Portals",
	"531120": "Lessors of Nonresidential Buildings (except Miniwarehouses)",
	"541110": "Offices of Lawyers",
	"541211": "Offices of Certified Public Accountants",
	"541310": "Architectural Services",
	"541330": "Engineering Services",
	"541380": "Testing Laboratories",
	"541511": "Custom Computer Programming Services",
	"541512": "Computer Systems Design Services",
	"541513": "Computer Facilities Management Services",
	"541519": "Other Computer Related Services",
	"541611": "Administrative Management and General Management Consulting Services",
	"541618": "Other Management Consulting Services",
	"541690": "Other Scientific and Technical Consulting Services",
	"541712": "Research and Development in the Physical, Engineering, and Life Sciences (except Biotechnology)",
	"541715": "Research and Development in the Physical, Engineering, and Life Sciences (except Nanotechnology and Biotechnology)",
	"541990": "All Other Professional, Scientific, and Technical Services",
	"561110": "Office Administrative Services",
	"561210": "Facilities Support Services",
	"561320": "Temporary Help Services",
	"561612": "Security Guards and Patrol Services",
	"561720": "Janitorial Services",
	"561730": "Landscaping Services",
	"562910": "Remediation Services",
	"611430": "Professional and Management Development Training",
	"611519": "Other Technical and Trade Schools",
	"621111": "Offices of Physicians (except Mental Health Specialists)",
	"621399": "Offices of All Other Miscellaneous Health Practitioners",
	"621999": "All Other Miscellaneous Ambulatory Health Care Services",
	"622110": "General Medical and Surgical Hospitals",
	"624230": "Emergency and Other Relief Services",
	"721110": "Hotels (except Casino Hotels) and Motels",
	"722310": "Food Service Contractors",
	"811210": "Electronic and Precision Equipment Repair and Maintenance",
	"811310": "Commercial and Industrial Machinery and Equipment (except Automotive and Electronic) Repair and Maintenance",
	"812320": "Drycleaning and Laundry Services (except Coin-Operated)",
	"928110": "National Security",
	"928120": "International Affairs",
}

// Describe returns the official description for a NAICS code.
func Describe(code string) (string, bool) {
	desc, ok := descriptions[normalize(code)]
	return desc, ok
}

// IsValid reports whether the code exists in the table.
func IsValid(code string) bool {
	_, ok := descriptions[normalize(code)]
	return ok
}

// IsWellFormed reports whether the code is six digits, without
// consulting the table. Useful for recognizing codes embedded in
// provenance maps before accepting them.
func IsWellFormed(code string) bool {
	code = normalize(code)
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func normalize(code string) string {
	return strings.TrimSpace(code)
}
