package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"

	"bandmate-backend/config"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"google.golang.org/api/option"
)

type NotificationService struct {
	fcm *messaging.Client
}

var notifService *NotificationService

func GetNotificationService() *NotificationService {
	if notifService == nil {
		notifService = &NotificationService{}
		notifService.initFCM()
	}
	return notifService
}

// ============================================================
// PUSH NOTIFICATIONS via Firebase Cloud Messaging
// ============================================================

func (ns *NotificationService) initFCM() {
	app, err := firebase.NewApp(context.Background(), nil,
		option.WithCredentialsFile(config.AppConfig.FirebaseCredPath))
	if err != nil {
		log.Printf("⚠️  Firebase not configured, push notifications disabled: %v", err)
		return
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("⚠️  FCM client init failed, push notifications disabled: %v", err)
		return
	}

	ns.fcm = client
}

func (ns *NotificationService) sendPush(fcmToken string, title string, body string, data map[string]string) {
	if ns.fcm == nil || fcmToken == "" {
		return
	}

	msg := &messaging.Message{
		Token: fcmToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if _, err := ns.fcm.Send(context.Background(), msg); err != nil {
		log.Printf("❌ FCM send error: %v", err)
		return
	}

	log.Printf("✅ Push notification sent: %s", title)
}

// ============================================================
// EMAIL NOTIFICATIONS via SendGrid
// ============================================================

func (ns *NotificationService) sendEmail(toEmail string, toName string, subject string, htmlBody string) error {
	if config.AppConfig.SendGridAPIKey == "" {
		log.Printf("⚠️  SendGrid API key not set, skipping email to %s", toEmail)
		return nil
	}

	from := mail.NewEmail(config.AppConfig.AppName, config.AppConfig.SendGridFrom)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, "", htmlBody)

	client := sendgrid.NewSendClient(config.AppConfig.SendGridAPIKey)
	resp, err := client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	log.Printf("✅ Email sent to %s", toEmail)
	return nil
}

// ============================================================
// NOTIFICATION EVENTS
// ============================================================

// SendInviteEmail delivers the acceptance link. Returns the delivery
// error so the issuer can surface it; the invitation row already exists
// by the time this is called, and re-issuing reuses the same token.
func (ns *NotificationService) SendInviteEmail(email, inviterName, bandName, acceptURL string) error {
	subject := fmt.Sprintf("%s invited you to join \"%s\" on %s", inviterName, bandName, config.AppConfig.AppName)
	htmlBody := buildInvitationEmailHTML(inviterName, bandName, acceptURL)
	return ns.sendEmail(email, "", subject, htmlBody)
}

// NotifyMemberJoined sends a push to every existing member's device.
func (ns *NotificationService) NotifyMemberJoined(bandID string, bandName string, newMemberName string, memberTokens []string) {
	title := fmt.Sprintf("%s joined %s", newMemberName, bandName)
	for _, token := range memberTokens {
		ns.sendPush(token, title, "Say hi in the band chat!", map[string]string{
			"type":    "member_joined",
			"band_id": bandID,
		})
	}
}

// NotifyEventCreated sends a push about a new rehearsal or gig.
func (ns *NotificationService) NotifyEventCreated(bandID, bandName, eventID, title string, memberTokens []string) {
	pushTitle := fmt.Sprintf("New event in %s", bandName)
	for _, token := range memberTokens {
		ns.sendPush(token, pushTitle, title, map[string]string{
			"type":     "event_created",
			"band_id":  bandID,
			"event_id": eventID,
		})
	}
}

// NotifyChatMessage sends a push for a new chat message.
func (ns *NotificationService) NotifyChatMessage(bandID, bandName, senderName, content string, memberTokens []string) {
	title := fmt.Sprintf("%s in %s", senderName, bandName)
	for _, token := range memberTokens {
		ns.sendPush(token, title, content, map[string]string{
			"type":    "chat_message",
			"band_id": bandID,
		})
	}
}

// ============================================================
// EMAIL TEMPLATES
// ============================================================

func buildInvitationEmailHTML(inviterName, bandName, acceptURL string) string {
	tmpl := `
<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f5f5f5;">
	<div style="background: white; border-radius: 12px; padding: 32px; box-shadow: 0 2px 8px rgba(0,0,0,0.1);">
		<h2 style="color: #7C3AED; margin-top: 0;">🎸 You're invited!</h2>
		<p><strong>{{.InviterName}}</strong> invited you to join <strong>"{{.BandName}}"</strong> on {{.AppName}}.</p>
		<p>{{.AppName}} keeps your band's rehearsals, gigs, and chat in one place.</p>
		<div style="margin: 24px 0;">
			<a href="{{.AcceptURL}}" style="background: #7C3AED; color: white; padding: 12px 32px; border-radius: 8px; text-decoration: none; font-weight: bold;">Accept Invitation</a>
		</div>
		<p style="color: #999; font-size: 12px;">This invitation link is personal — don't forward it.</p>
		<p style="color: #999; font-size: 12px; margin-top: 24px;">— {{.AppName}}</p>
	</div>
</body>
</html>`

	t, _ := template.New("invitation").Parse(tmpl)
	var buf bytes.Buffer
	t.Execute(&buf, map[string]interface{}{
		"InviterName": inviterName,
		"BandName":    bandName,
		"AcceptURL":   acceptURL,
		"AppName":     config.AppConfig.AppName,
	})
	return buf.String()
}
