package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/roy2392/natalie-voice-agent-demo/internal/conversation"
	"github.com/roy2392/natalie-voice-agent-demo/internal/kb"
)

// rule maps trigger keywords to a canned reply. Rules are evaluated in
// declaration order and the first match wins, so earlier rules shadow later
// ones on overlapping keywords (e.g. greeting before goodbye for "שלום").
type rule struct {
	keywords []string
	reply    string
}

// RuleTable is the no-API responder: an ordered keyword table evaluated
// against the latest user utterance. It implements Generator so the agent
// can be constructed with it when no generation credentials exist.
type RuleTable struct {
	rules        []rule
	defaultReply string
}

// NewRuleTable builds the ordered rule table, pulling contact details from
// the knowledge base when available.
func NewRuleTable(k *kb.KnowledgeBase) *RuleTable {
	phone := "03-6076111"
	emergency := "*3380"
	address := "רחוב החילזון 4, רמת גן 5231282"
	if k != nil {
		if k.Contact.MainPhone != "" {
			phone = k.Contact.MainPhone
		}
		if k.Contact.EmergencyHotlineMembers != "" {
			emergency = k.Contact.EmergencyHotlineMembers
		}
		if k.Contact.Address != "" {
			address = k.Contact.Address
		}
	}

	return &RuleTable{
		rules: []rule{
			{
				keywords: []string{"שלום", "היי", "בוקר טוב", "ערב טוב"},
				reply:    "שלום וברכה! אני הסוכן הקולי החכם של נטלי. איך אוכל לעזור לכם היום?",
			},
			{
				keywords: []string{"חירום", "דחוף", "טלפון", "מספר", "צור קשר"},
				reply:    fmt.Sprintf("למצבי חירום, חייגו כוכבית 3380. למידע כללי, טלפון %s. המוקד שלנו זמין 24 שעות ביממה, 7 ימים בשבוע.", phone),
			},
			{
				keywords: []string{"שירות", "מה אתם", "מה עושים", "מציעים"},
				reply:    "נטלי מציעה מגוון רחב של שירותי רפואה ביתיים, כולל: מוקד חירום רפואי זמין 24/7, שירותי טלרפואה מתקדמים, טיפול סיעודי ביתי מקצועי, תוכניות בריאות קהילתיות, ועוד הרבה יותר.",
			},
			{
				keywords: []string{"סיעוד", "טיפול", "אחות", "ביתי"},
				reply:    "אנחנו מספקים שירותי טיפול סיעודי ביתי מקצועי עם אלפי אנשי מקצוע מנוסים. הצוותים שלנו זמינים בכל הארץ ומעניקים טיפול איכותי ומסור בבית המטופל.",
			},
			{
				keywords: []string{"כפתור", "מצוקה", "מעקב", "התקן"},
				reply:    "אנחנו מספקים מערכות כפתור מצוקה מתקדמות והתקני מעקב רפואיים חכמים. המערכות מחוברות למוקד החירום שלנו שזמין 24 שעות ביממה לתגובה מהירה.",
			},
			{
				keywords: []string{"טלרפואה", "מרחוק", "וידאו"},
				reply:    "נטלי מציעה שירותי טלרפואה מתקדמים המאפשרים לקבל ייעוץ רפואי מקצועי מהבית. השירות זמין דרך מגוון ערוצי תקשורת ומאפשר מעקב רפואי מתמיד.",
			},
			{
				keywords: []string{"ניסיון", "שנים", "מי אתם", "על החברה"},
				reply:    "נטלי היא החברה הגדולה, הוותיקה והמנוסה ביותר לשירותי רפואה ביתיים בישראל, עם למעלה מ-30 שנות ניסיון. אנחנו מעניקים שירות אמין ומקצועי לאלפי משפחות בכל רחבי הארץ.",
			},
			{
				keywords: []string{"שעות", "זמין", "מתי", "פתוח"},
				reply:    "המוקד החירום הרפואי שלנו זמין 24 שעות ביממה, 7 ימים בשבוע, 365 ימים בשנה. אנחנו תמיד כאן בשבילכם.",
			},
			{
				keywords: []string{"כתובת", "איפה", "מיקום", "נמצא"},
				reply:    fmt.Sprintf("המשרדים שלנו ממוקמים ב%s. השירותים שלנו זמינים בכל רחבי הארץ.", address),
			},
			{
				keywords: []string{"קשיש", "זקן", "גיל שלישי"},
				reply:    "אנחנו מתמחים במתן שירותים מקיפים לאזרחים ותיקים, כולל טיפול סיעודי ביתי, מעקב רפואי, כפתור מצוקה, ותמיכה משפחתית מלאה. הצוות שלנו מיומן במיוחד בטיפול בקשישים.",
			},
			{
				keywords: []string{"כרוני", "מחלה", "ממושך"},
				reply:    "נטלי מספקת שירותים מיוחדים לחולים כרוניים, כולל מעקב רפואי מתמשך, התקני מעקב חכמים, טיפול ביתי מקצועי ותמיכה משפחתית מותאמת אישית.",
			},
			{
				keywords: []string{"מחיר", "כמה עולה", "עלות", "תשלום"},
				reply:    fmt.Sprintf("המחירים משתנים בהתאם לסוג השירות ולצרכים האישיים. אנא צרו קשר עם המוקד שלנו בטלפון %s לקבלת הצעת מחיר מותאמת אישית וייעוץ ללא עלות.", phone),
			},
			{
				keywords: []string{"תודה", "תודה רבה"},
				reply:    fmt.Sprintf("בשמחה! אם יש לכם שאלות נוספות, אני כאן לעזור. תמיד אפשר גם לפנות למוקד שלנו בטלפון %s.", phone),
			},
			{
				keywords: []string{"להתראות", "ביי", "שלום"},
				reply:    "להתראות ויום נעים! נטלי תמיד כאן בשבילכם. בריאות טובה!",
			},
		},
		defaultReply: fmt.Sprintf("זו שאלה מעניינת. אשמח לעזור לכם. אנא חייגו למוקד שלנו בטלפון %s או %s למצבי חירום, ונציגינו המקצועיים יענו על כל שאלה בפירוט. אנחנו זמינים 24 שעות ביממה.", phone, emergency),
	}
}

// Generate matches the latest user message against the rule table.
func (t *RuleTable) Generate(_ context.Context, _ string, history []conversation.Message) (string, error) {
	var latest string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == conversation.RoleUser {
			latest = history[i].Content
			break
		}
	}
	q := strings.ToLower(latest)
	for _, r := range t.rules {
		for _, kw := range r.keywords {
			if strings.Contains(q, kw) {
				return r.reply, nil
			}
		}
	}
	return t.defaultReply, nil
}
