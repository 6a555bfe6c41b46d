package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// Launcher places outbound calls that open with a scripted line spoken in
// Hebrew.
type Launcher struct {
	client    *twilio.RestClient
	from      string
	authToken string
}

func NewLauncher(accountSID, authToken, from string) *Launcher {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Launcher{client: client, from: from, authToken: authToken}
}

// StartCall dials the destination and speaks the opening line. Returns the
// call SID.
func (l *Launcher) StartCall(to, openingLine string) (string, error) {
	if l.from == "" {
		return "", fmt.Errorf("telephony: caller number not configured")
	}
	doc, err := VoiceResponse(openingLine)
	if err != nil {
		return "", err
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(l.from)
	params.SetTwiml(doc)

	resp, err := l.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("telephony: create call: %w", err)
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	log.Printf("telephony: outbound call started sid=%s to=%s", sid, to)
	return sid, nil
}

// VoiceResponse builds a TwiML document that speaks one Hebrew line.
func VoiceResponse(text string) (string, error) {
	say := &twiml.VoiceSay{Message: text, Language: "he-IL"}
	doc, err := twiml.Voice([]twiml.Element{say})
	if err != nil {
		return "", fmt.Errorf("telephony: build twiml: %w", err)
	}
	return doc, nil
}

// SignatureMiddleware validates inbound Twilio webhooks via the
// X-Twilio-Signature header and stashes the form parameters on the context
// under "twilioParams".
func SignatureMiddleware(authToken func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := authToken()
			if token == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}

			body, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			formData, err := url.ParseQuery(string(body))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}
			params := make(map[string]string)
			for key, values := range formData {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			signature := c.Request().Header.Get("X-Twilio-Signature")
			requestURL := fmt.Sprintf("https://%s%s", c.Request().Host, c.Request().URL.Path)
			if !ValidateSignature(token, signature, requestURL, params) {
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}

			c.Set("twilioParams", params)
			return next(c)
		}
	}
}

// ValidateSignature checks a Twilio HMAC-SHA1 request signature: the full
// URL concatenated with the sorted form parameters, keyed by the auth token.
func ValidateSignature(authToken, signature, fullURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}

	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
