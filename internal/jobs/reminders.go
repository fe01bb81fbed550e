package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/orderease/backend/internal/models"
	"github.com/orderease/backend/internal/services"
	"github.com/orderease/backend/internal/storage"
)

const (
	sweepInterval  = 10 * time.Minute
	reminderAfter  = 30 * time.Minute
	abandonmentTTL = 24 * time.Hour
)

// ReminderJob periodically sweeps pending-payment drafts: nudges customers
// who stalled at the payment step, and cancels drafts nobody came back for
type ReminderJob struct {
	store     storage.Store
	messenger services.Messenger
	stop      chan struct{}
	isRunning bool
}

// NewReminderJob creates the payment reminder sweeper
func NewReminderJob(store storage.Store, messenger services.Messenger) *ReminderJob {
	return &ReminderJob{
		store:     store,
		messenger: messenger,
		stop:      make(chan struct{}),
	}
}

// Start begins the reminder sweep loop
func (r *ReminderJob) Start() {
	if r.isRunning {
		log.Println("Reminder job already running")
		return
	}
	r.isRunning = true
	log.Println("Starting payment reminder job...")
	go r.run()
}

// Stop halts the sweep loop
func (r *ReminderJob) Stop() {
	if !r.isRunning {
		return
	}
	r.isRunning = false
	close(r.stop)
	log.Println("Stopping payment reminder job...")
}

func (r *ReminderJob) run() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stop:
			return
		}
	}
}

func (r *ReminderJob) sweep() {
	drafts, err := r.store.GetWhatsAppOrdersByStatus(models.DraftStatusPendingPayment)
	if err != nil {
		log.Printf("❌ Reminder sweep failed to list drafts: %v", err)
		return
	}

	now := time.Now()
	for _, draft := range drafts {
		age := now.Sub(draft.CreatedAt)

		if age > abandonmentTTL {
			draft.Status = models.DraftStatusCancelled
			if err := r.store.UpdateWhatsAppOrder(draft); err != nil {
				log.Printf("❌ Failed to cancel abandoned draft %s: %v", draft.ID, err)
				continue
			}
			log.Printf("🗑️ Cancelled abandoned draft %s (age %v)", draft.ID, age.Round(time.Minute))
			continue
		}

		if age > reminderAfter && draft.ReminderSentAt == nil {
			msg := fmt.Sprintf("⏰ *Still hungry?*\n\nYour order for ₹%.2f is waiting for payment.\n\nReply *pay* to get your payment link, or *quit* to cancel.", draft.TotalAmount)
			if err := r.messenger.SendWhatsAppMessage(draft.PhoneNumber, msg); err != nil {
				log.Printf("❌ Failed to send payment reminder to %s: %v", draft.PhoneNumber, err)
				continue
			}
			draft.ReminderSentAt = &now
			if err := r.store.UpdateWhatsAppOrder(draft); err != nil {
				log.Printf("⚠️ Failed to mark reminder sent for draft %s: %v", draft.ID, err)
			}
		}
	}
}
