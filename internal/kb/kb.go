// Package kb loads the company knowledge base and assembles the system
// prompt sent with every generation request.
package kb

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
)

// DefaultSystemPrompt is used whenever the knowledge base is unavailable.
const DefaultSystemPrompt = `אתה סוכן קולי חכם ומקצועי עבור חברת נטלי - החברה הגדולה והוותיקה ביותר לשירותי רפואה ביתיים בישראל.

דבר בעברית בלבד, היה מנומס ומקצועי, ותן תשובות תמציתיות וברורות.`

// KnowledgeBase mirrors the read-only JSON document describing the company.
type KnowledgeBase struct {
	Company struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Experience  string `json:"experience"`
		Statistics  struct {
			CallsPerYear     string `json:"calls_per_year"`
			ConnectedHomes   string `json:"connected_homes"`
			HomeDoctorVisits string `json:"home_doctor_visits"`
			ServiceProviders string `json:"service_providers"`
		} `json:"statistics"`
	} `json:"company"`
	Contact struct {
		Address                 string `json:"address"`
		MainPhone               string `json:"main_phone"`
		WhatsApp                string `json:"whatsapp"`
		EmergencyHotlineMembers string `json:"emergency_hotline_members"`
		MemberServicesHotline   string `json:"member_services_hotline"`
		Hours                   string `json:"hours"`
	} `json:"contact"`
	Services map[string]Service `json:"services"`
	// UniqueSellingPoints lists company advantages verbatim.
	UniqueSellingPoints []string `json:"unique_selling_points"`
	FAQ                 []QA     `json:"faq"`
}

// Service is one named service area with its detail lines.
type Service struct {
	Name    string   `json:"name"`
	Details []string `json:"details"`
}

// QA is one frequently-asked question with its canned answer.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Load reads the knowledge base document from path. A load failure is not
// fatal: callers fall back to DefaultSystemPrompt.
func Load(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb: read %s: %w", path, err)
	}
	var k KnowledgeBase
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("kb: parse %s: %w", path, err)
	}
	log.Printf("kb: knowledge base loaded from %s", path)
	return &k, nil
}

// serviceOrder fixes the presentation order of service sections.
var serviceOrder = []string{
	"emergency_solutions",
	"telemedicine",
	"home_care",
	"community_services",
	"education_training",
	"additional_member_services",
}

// SystemPrompt assembles the full Hebrew system prompt from the knowledge
// base. It is rebuilt per request so the history never carries it.
func (k *KnowledgeBase) SystemPrompt() string {
	if k == nil {
		return DefaultSystemPrompt
	}
	var b strings.Builder
	fmt.Fprintf(&b, "אתה סוכן קולי חכם ומקצועי עבור חברת נטלי - %s.\n\n", k.Company.Description)

	b.WriteString("מידע מפורט על נטלי:\n\n")
	b.WriteString("נתונים סטטיסטיים:\n")
	for _, s := range []string{
		k.Company.Statistics.CallsPerYear,
		k.Company.Statistics.ConnectedHomes,
		k.Company.Statistics.HomeDoctorVisits,
		k.Company.Statistics.ServiceProviders,
	} {
		if s != "" {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	b.WriteString("\nפרטי התקשרות:\n")
	fmt.Fprintf(&b, "- כתובת: %s\n", k.Contact.Address)
	fmt.Fprintf(&b, "- טלפון מרכזייה: %s\n", k.Contact.MainPhone)
	fmt.Fprintf(&b, "- WhatsApp: %s\n", k.Contact.WhatsApp)
	fmt.Fprintf(&b, "- חירום לחברים: %s\n", k.Contact.EmergencyHotlineMembers)
	fmt.Fprintf(&b, "- שירותים כלליים: %s\n", k.Contact.MemberServicesHotline)
	fmt.Fprintf(&b, "- שעות פעילות: %s\n", k.Contact.Hours)

	b.WriteString("\nשירותי נטלי:\n")
	for i, key := range serviceOrder {
		svc, ok := k.Services[key]
		if !ok {
			continue
		}
		name := svc.Name
		if name == "" {
			name = key
		}
		fmt.Fprintf(&b, "\n%d. %s:\n", i+1, name)
		for _, d := range svc.Details {
			fmt.Fprintf(&b, "   - %s\n", d)
		}
	}

	if len(k.UniqueSellingPoints) > 0 {
		b.WriteString("\nיתרונות נטלי:\n")
		for _, p := range k.UniqueSellingPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	if len(k.FAQ) > 0 {
		b.WriteString("\nשאלות נפוצות:\n")
		for _, qa := range k.FAQ {
			fmt.Fprintf(&b, "\nשאלה: %s\nתשובה: %s\n", qa.Question, qa.Answer)
		}
	}

	b.WriteString("\nהנחיות לשיחה:\n")
	fmt.Fprintf(&b, "1. דבר בעברית בלבד\n")
	fmt.Fprintf(&b, "2. היה מנומס, מקצועי, חם ואכפתי\n")
	fmt.Fprintf(&b, "3. תן תשובות תמציתיות וברורות (2-4 משפטים)\n")
	fmt.Fprintf(&b, "4. השתמש במידע מבסיס הידע שסופק לך למעלה\n")
	fmt.Fprintf(&b, "5. אם לא יודע משהו, הפנה ללקוח לטלפון %s\n", k.Contact.MainPhone)
	fmt.Fprintf(&b, "6. למצבי חירום - הדגש את מספר %s (לחברים) או %s (כללי)\n",
		k.Contact.EmergencyHotlineMembers, k.Contact.MemberServicesHotline)
	fmt.Fprintf(&b, "7. השתמש בטון אכפתי ומקצועי המתאים לחברת שירותי בריאות\n")
	fmt.Fprintf(&b, "8. תמיד ענה על סמך המידע המדויק שסופק לך\n")
	fmt.Fprintf(&b, "9. אל תמציא מידע - אם לא בטוח, הפנה ללקוח לצוות נטלי\n")

	fmt.Fprintf(&b, "\nזכור: אתה מייצג חברה רפואית מכובדת עם %s ניסיון. הקפד על מקצועיות, דיוק ואמפתיה בכל תשובה.", k.Company.Experience)
	return b.String()
}
