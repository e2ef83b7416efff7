package geo

// table is the fixed lookup of supported countries. MapName matches the
// feature names of the echarts "world" map.
var table = []Country{
	{Name: "United States", ISO2: "US", ISO3: "USA", MapName: "United States", Aliases: []string{"US", "USA", "U.S.", "U.S.A.", "United States of America"}},
	{Name: "United Kingdom", ISO2: "GB", ISO3: "GBR", MapName: "United Kingdom", Aliases: []string{"UK", "U.K.", "Britain", "Great Britain", "England"}},
	{Name: "Israel", ISO2: "IL", ISO3: "ISR", MapName: "Israel"},
	{Name: "Palestine", ISO2: "PS", ISO3: "PSE", MapName: "Palestine", Aliases: []string{"Gaza", "West Bank", "Palestinian Territories"}},
	{Name: "Iran", ISO2: "IR", ISO3: "IRN", MapName: "Iran"},
	{Name: "Iraq", ISO2: "IQ", ISO3: "IRQ", MapName: "Iraq"},
	{Name: "Syria", ISO2: "SY", ISO3: "SYR", MapName: "Syria"},
	{Name: "Lebanon", ISO2: "LB", ISO3: "LBN", MapName: "Lebanon"},
	{Name: "Jordan", ISO2: "JO", ISO3: "JOR", MapName: "Jordan"},
	{Name: "Egypt", ISO2: "EG", ISO3: "EGY", MapName: "Egypt"},
	{Name: "Saudi Arabia", ISO2: "SA", ISO3: "SAU", MapName: "Saudi Arabia", Aliases: []string{"KSA"}},
	{Name: "United Arab Emirates", ISO2: "AE", ISO3: "ARE", MapName: "United Arab Emirates", Aliases: []string{"UAE", "Emirates"}},
	{Name: "Qatar", ISO2: "QA", ISO3: "QAT", MapName: "Qatar"},
	{Name: "Yemen", ISO2: "YE", ISO3: "YEM", MapName: "Yemen"},
	{Name: "Turkey", ISO2: "TR", ISO3: "TUR", MapName: "Turkey", Aliases: []string{"Türkiye", "Turkiye"}},
	{Name: "Russia", ISO2: "RU", ISO3: "RUS", MapName: "Russia", Aliases: []string{"Russian Federation"}},
	{Name: "Ukraine", ISO2: "UA", ISO3: "UKR", MapName: "Ukraine"},
	{Name: "China", ISO2: "CN", ISO3: "CHN", MapName: "China", Aliases: []string{"PRC", "People's Republic of China"}},
	{Name: "Taiwan", ISO2: "TW", ISO3: "TWN", MapName: "Taiwan"},
	{Name: "Japan", ISO2: "JP", ISO3: "JPN", MapName: "Japan"},
	{Name: "South Korea", ISO2: "KR", ISO3: "KOR", MapName: "Korea", Aliases: []string{"Republic of Korea", "ROK"}},
	{Name: "North Korea", ISO2: "KP", ISO3: "PRK", MapName: "Dem. Rep. Korea", Aliases: []string{"DPRK"}},
	{Name: "India", ISO2: "IN", ISO3: "IND", MapName: "India"},
	{Name: "Pakistan", ISO2: "PK", ISO3: "PAK", MapName: "Pakistan"},
	{Name: "Afghanistan", ISO2: "AF", ISO3: "AFG", MapName: "Afghanistan"},
	{Name: "Bangladesh", ISO2: "BD", ISO3: "BGD", MapName: "Bangladesh"},
	{Name: "Indonesia", ISO2: "ID", ISO3: "IDN", MapName: "Indonesia"},
	{Name: "Malaysia", ISO2: "MY", ISO3: "MYS", MapName: "Malaysia"},
	{Name: "Philippines", ISO2: "PH", ISO3: "PHL", MapName: "Philippines"},
	{Name: "Vietnam", ISO2: "VN", ISO3: "VNM", MapName: "Vietnam", Aliases: []string{"Viet Nam"}},
	{Name: "Thailand", ISO2: "TH", ISO3: "THA", MapName: "Thailand"},
	{Name: "Australia", ISO2: "AU", ISO3: "AUS", MapName: "Australia"},
	{Name: "New Zealand", ISO2: "NZ", ISO3: "NZL", MapName: "New Zealand"},
	{Name: "Canada", ISO2: "CA", ISO3: "CAN", MapName: "Canada"},
	{Name: "Mexico", ISO2: "MX", ISO3: "MEX", MapName: "Mexico"},
	{Name: "Brazil", ISO2: "BR", ISO3: "BRA", MapName: "Brazil"},
	{Name: "Argentina", ISO2: "AR", ISO3: "ARG", MapName: "Argentina"},
	{Name: "Chile", ISO2: "CL", ISO3: "CHL", MapName: "Chile"},
	{Name: "Colombia", ISO2: "CO", ISO3: "COL", MapName: "Colombia"},
	{Name: "Venezuela", ISO2: "VE", ISO3: "VEN", MapName: "Venezuela"},
	{Name: "Cuba", ISO2: "CU", ISO3: "CUB", MapName: "Cuba"},
	{Name: "Germany", ISO2: "DE", ISO3: "DEU", MapName: "Germany"},
	{Name: "France", ISO2: "FR", ISO3: "FRA", MapName: "France"},
	{Name: "Italy", ISO2: "IT", ISO3: "ITA", MapName: "Italy"},
	{Name: "Spain", ISO2: "ES", ISO3: "ESP", MapName: "Spain"},
	{Name: "Portugal", ISO2: "PT", ISO3: "PRT", MapName: "Portugal"},
	{Name: "Netherlands", ISO2: "NL", ISO3: "NLD", MapName: "Netherlands", Aliases: []string{"Holland"}},
	{Name: "Belgium", ISO2: "BE", ISO3: "BEL", MapName: "Belgium"},
	{Name: "Switzerland", ISO2: "CH", ISO3: "CHE", MapName: "Switzerland"},
	{Name: "Austria", ISO2: "AT", ISO3: "AUT", MapName: "Austria"},
	{Name: "Ireland", ISO2: "IE", ISO3: "IRL", MapName: "Ireland"},
	{Name: "Poland", ISO2: "PL", ISO3: "POL", MapName: "Poland"},
	{Name: "Czech Republic", ISO2: "CZ", ISO3: "CZE", MapName: "Czech Rep.", Aliases: []string{"Czechia"}},
	{Name: "Hungary", ISO2: "HU", ISO3: "HUN", MapName: "Hungary"},
	{Name: "Romania", ISO2: "RO", ISO3: "ROU", MapName: "Romania"},
	{Name: "Greece", ISO2: "GR", ISO3: "GRC", MapName: "Greece"},
	{Name: "Sweden", ISO2: "SE", ISO3: "SWE", MapName: "Sweden"},
	{Name: "Norway", ISO2: "NO", ISO3: "NOR", MapName: "Norway"},
	{Name: "Denmark", ISO2: "DK", ISO3: "DNK", MapName: "Denmark"},
	{Name: "Finland", ISO2: "FI", ISO3: "FIN", MapName: "Finland"},
	{Name: "South Africa", ISO2: "ZA", ISO3: "ZAF", MapName: "South Africa"},
	{Name: "Nigeria", ISO2: "NG", ISO3: "NGA", MapName: "Nigeria"},
	{Name: "Kenya", ISO2: "KE", ISO3: "KEN", MapName: "Kenya"},
	{Name: "Ethiopia", ISO2: "ET", ISO3: "ETH", MapName: "Ethiopia"},
	{Name: "Sudan", ISO2: "SD", ISO3: "SDN", MapName: "Sudan"},
	{Name: "South Sudan", ISO2: "SS", ISO3: "SSD", MapName: "S. Sudan"},
	{Name: "Morocco", ISO2: "MA", ISO3: "MAR", MapName: "Morocco"},
	{Name: "Algeria", ISO2: "DZ", ISO3: "DZA", MapName: "Algeria"},
	{Name: "Tunisia", ISO2: "TN", ISO3: "TUN", MapName: "Tunisia"},
	{Name: "Libya", ISO2: "LY", ISO3: "LBY", MapName: "Libya"},
}
