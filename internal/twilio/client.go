// Package twilio is the concrete chat transport: a WhatsApp sender plus
// the webhook that translates inbound messages into structured events.
// Choice keyboards are rendered as option lines and callback buttons as
// reply instructions, since WhatsApp carries plain text both ways.
package twilio

import (
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/soglom/pillbot/internal/transport"
)

// EventHandler processes one inbound event and returns the replies to
// write back.
type EventHandler func(transport.Event) []transport.Reply

// Client wraps Twilio messaging for the bot. User ids are the E.164
// digits of the sender's WhatsApp number.
type Client struct {
	client       *twilio.RestClient
	fromWhatsApp string
	logger       *log.Logger
}

// New creates a Twilio client bound to the configured WhatsApp sender
// number.
func New(accountSID, authToken, fromWhatsApp string, logger *log.Logger) *Client {
	return &Client{
		client:       twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken}),
		fromWhatsApp: fromWhatsApp,
		logger:       logger,
	}
}

// Send delivers a reply outside of a webhook exchange (reminders).
func (c *Client) Send(userID int64, reply transport.Reply) error {
	if c.client == nil {
		return fmt.Errorf("twilio client not initialised")
	}
	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + strconv.FormatInt(userID, 10))
	params.SetFrom(sender)
	params.SetBody(RenderReply(reply))

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send message: %w", err)
	}
	return nil
}

// Handler returns the webhook for incoming messages. Each POST becomes
// one event; the handler's replies are concatenated into a single TwiML
// response.
func (c *Client) Handler(handle EventHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			c.logger.Printf("webhook: parse form: %v", err)
			c.writeTwiML(w, "Sorry, I couldn't read that message.")
			return
		}

		from := r.FormValue("From")
		body := strings.TrimSpace(r.FormValue("Body"))
		if from == "" || body == "" {
			c.writeTwiML(w, "I need a message to work with. Please try again.")
			return
		}
		userID, err := userIDFromNumber(from)
		if err != nil {
			c.logger.Printf("webhook: bad sender %q: %v", from, err)
			c.writeTwiML(w, "Sorry, I couldn't identify you.")
			return
		}

		replies := handle(translate(userID, r.FormValue("ProfileName"), body))

		var parts []string
		for _, reply := range replies {
			if text := RenderReply(reply); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			parts = append(parts, "OK")
		}
		c.writeTwiML(w, strings.Join(parts, "\n\n"))
	}
}

var buttonReply = regexp.MustCompile(`^(taken|missed|confirm_delete_course|cancel_delete_course)\s+(\S+)$`)

// translate classifies one inbound body: a start greeting, an emulated
// button press ("<action> <ref>"), or plain text for the intent layer.
func translate(userID int64, name, body string) transport.Event {
	lower := strings.ToLower(body)
	switch lower {
	case "/start", "start", "hi", "hello":
		return transport.Event{UserID: userID, Name: name, Kind: transport.EventCommand, Command: "start"}
	}
	if m := buttonReply.FindStringSubmatch(lower); m != nil {
		return transport.Event{UserID: userID, Name: name, Kind: transport.EventButton, Action: m[1], Ref: m[2]}
	}
	return transport.Event{UserID: userID, Name: name, Kind: transport.EventText, Text: body}
}

// RenderReply flattens a structured reply into WhatsApp text: keyboards
// become option lines, buttons become reply instructions.
func RenderReply(reply transport.Reply) string {
	var sb strings.Builder
	if reply.Text != "" {
		sb.WriteString(reply.Text)
	} else if reply.Ack != "" {
		sb.WriteString(reply.Ack)
	}
	for _, btn := range reply.Buttons {
		fmt.Fprintf(&sb, "\n\nReply \"%s %s\" for %s", btn.Action, btn.Ref, btn.Label)
	}
	if len(reply.Keyboard) > 0 {
		sb.WriteString("\n")
		for _, row := range reply.Keyboard {
			sb.WriteString("\n- " + strings.Join(row, " | "))
		}
	}
	return strings.TrimSpace(sb.String())
}

func (c *Client) writeTwiML(w http.ResponseWriter, message string) {
	resp := struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message"`
	}{Message: message}
	w.Header().Set("Content-Type", "application/xml")
	if err := xml.NewEncoder(w).Encode(resp); err != nil {
		c.logger.Printf("webhook: encode response: %v", err)
	}
}

// userIDFromNumber derives the numeric user id from a WhatsApp address.
func userIDFromNumber(from string) (int64, error) {
	digits := strings.TrimPrefix(from, "whatsapp:")
	digits = strings.TrimPrefix(digits, "+")
	return strconv.ParseInt(digits, 10, 64)
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}
