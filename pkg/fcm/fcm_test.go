package fcm

import "testing"

func TestToMessagingMessage(t *testing.T) {
	msg := toMessagingMessage(Message{
		Token:     "device-token",
		Title:     "Task Reminder",
		Body:      `Task "Ship" is due within 2 hours`,
		Sound:     "foranotif.wav",
		ChannelID: "default",
		Data:      map[string]string{"taskId": "t1"},
	})

	if msg.Token != "device-token" {
		t.Errorf("unexpected token %q", msg.Token)
	}
	if msg.Notification == nil || msg.Notification.Title != "Task Reminder" {
		t.Fatalf("notification title not carried over: %+v", msg.Notification)
	}
	if msg.Android == nil || msg.Android.Notification.ChannelID != "default" {
		t.Errorf("android channel not set")
	}
	if msg.Android.Notification.Sound != "foranotif.wav" {
		t.Errorf("android sound not set")
	}
	if msg.APNS == nil || msg.APNS.Payload.Aps.Sound != "foranotif.wav" {
		t.Errorf("apns sound not set")
	}
	if msg.Data["taskId"] != "t1" {
		t.Errorf("data payload lost")
	}
}
