package domain

import "strings"

// ContactFields holds one source of contact data. Nil and blank values are
// both treated as missing.
type ContactFields struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
}

// ContactSources is everything a lead knows about the person behind it: the
// structured contact relation, if any, and the legacy fields stored on the lead.
type ContactSources struct {
	Structured *ContactFields
	LeadName   *string
	LeadEmail  *string
	LeadPhone  *string
}

// ContactInfo is the merged identity. Empty strings mean unresolved.
type ContactInfo struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// HasName reports whether both name parts are present.
func (c ContactInfo) HasName() bool {
	return c.FirstName != "" && c.LastName != ""
}

// ResolveContactInfo merges the sources field by field, preferring the
// structured contact over the lead's own fields.
func ResolveContactInfo(src ContactSources) ContactInfo {
	var structured ContactFields
	if src.Structured != nil {
		structured = *src.Structured
	}

	info := ContactInfo{
		Email:     firstPresent(structured.Email, src.LeadEmail),
		Phone:     firstPresent(structured.Phone, src.LeadPhone),
		FirstName: firstPresent(structured.FirstName),
		LastName:  firstPresent(structured.LastName),
	}

	if info.FirstName == "" || info.LastName == "" {
		first, last := splitFullName(value(src.LeadName))
		if info.FirstName == "" {
			info.FirstName = first
		}
		if info.LastName == "" {
			info.LastName = last
		}
	}

	if info.LastName == "" {
		info.LastName = info.FirstName
	}

	return info
}

// splitFullName splits free text on whitespace: the first token is the first
// name and the rest the last name. A single token is used for both.
func splitFullName(full string) (string, string) {
	tokens := strings.Fields(full)
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return tokens[0], tokens[0]
	default:
		return tokens[0], strings.Join(tokens[1:], " ")
	}
}

func firstPresent(candidates ...*string) string {
	for _, c := range candidates {
		if v := value(c); v != "" {
			return v
		}
	}
	return ""
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
