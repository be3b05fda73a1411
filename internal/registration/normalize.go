package registration

import "strings"

func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// NormalizeYear canonicalizes the many year spellings the registration
// form has produced over time ("2", "2nd", "second year", "2nd_year")
// into the labels the admin dashboard displays.
func NormalizeYear(year string) string {
	value := strings.TrimSpace(strings.ToLower(year))
	value = strings.ReplaceAll(value, "_", " ")
	switch value {
	case "1", "1st", "first", "first year", "1st year":
		return "1st Year"
	case "2", "2nd", "second", "second year", "2nd year":
		return "2nd Year"
	case "3", "3rd", "third", "third year", "3rd year":
		return "3rd Year"
	case "4", "4th", "fourth", "fourth year", "4th year":
		return "4th Year"
	default:
		return strings.TrimSpace(year)
	}
}

// NormalizeDepartment maps free-form department input onto the campus
// department codes.
func NormalizeDepartment(department string) string {
	value := strings.TrimSpace(strings.ToLower(department))
	switch {
	case strings.Contains(value, "cse"), strings.Contains(value, "computer"):
		return "CSE"
	case strings.Contains(value, "cyber"):
		return "CYBER"
	case strings.Contains(value, "aids"), strings.Contains(value, "data science"):
		return "AIDS"
	case strings.Contains(value, "aiml"), strings.Contains(value, "machine learning"):
		return "AIML"
	default:
		return strings.ToUpper(strings.TrimSpace(department))
	}
}
