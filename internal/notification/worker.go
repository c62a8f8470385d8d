package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"signage-fleet-backend/internal/model"
	"signage-fleet-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans availability transitions out to the operators watching
// the affected terminals. Jobs are dispatched by the sweep runner; only
// transitions worth waking an operator for (long offline, and recovery
// from it) are sent here.
type WorkerPool struct {
	size    int
	jobs    chan store.StatusTransition
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan store.StatusTransition, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case transition := <-wp.jobs:
			wp.notifyTransition(ctx, transition)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(transition store.StatusTransition) {
	wp.jobs <- transition
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan store.StatusTransition {
	return wp.jobs
}

// SetSender replaces the push backend, for testing.
func (wp *WorkerPool) SetSender(s NotificationSender) {
	wp.sender = s
}

func (wp *WorkerPool) notifyTransition(ctx context.Context, transition store.StatusTransition) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_terminal_mapping stm ON stm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("stm.terminal_id = ?", transition.TerminalID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for terminal %s: %v", transition.TerminalID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := transition.TerminalID
	var terminal model.Terminal
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&terminal, "id = ?", transition.TerminalID).Error; err != nil {
		log.Printf("Error fetching terminal %s: %v", transition.TerminalID, err)
	} else if terminal.Name != "" {
		label = terminal.Name
	}

	var message string
	switch {
	case transition.To == model.StatusOfflineLong:
		message = fmt.Sprintf("Terminal %s has been offline for over an hour", label)
	case transition.To == model.StatusOnline && transition.From == model.StatusOfflineLong:
		message = fmt.Sprintf("Terminal %s is back online", label)
	default:
		return
	}

	log.Printf("Sending %d notifications for terminal %s", len(subscriptions), transition.TerminalID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
