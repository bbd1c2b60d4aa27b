package jobs

import (
	"context"
	"log"
	"time"

	"github.com/sanovia-health/messaging-backend/internal/storage"
)

// Retention windows per collection. Records older than their window are
// eligible for deletion.
const (
	MessageLogRetention  = 90 * 24 * time.Hour
	OTPRetention         = 24 * time.Hour
	IncomingRetention    = 90 * 24 * time.Hour
	ReminderLogRetention = 180 * 24 * time.Hour
)

// SweepReport holds per-collection deleted counts from one sweep run.
type SweepReport struct {
	MessageLogs         int64 `json:"message_logs"`
	OTPs                int64 `json:"otp_codes"`
	IncomingMessages    int64 `json:"incoming_messages"`
	ReminderLogs        int64 `json:"reminder_logs"`
	OverdueReminderLogs int64 `json:"overdue_reminder_logs"`
	Errors              int   `json:"errors"`
}

// RetentionJob deletes records past their retention window. It keeps no
// state between runs: re-running is always safe, and a failure in one
// collection never stops the others.
type RetentionJob struct {
	store storage.Store
	stop  chan struct{}
}

// NewRetentionJob creates a new retention sweeper
func NewRetentionJob(store storage.Store) *RetentionJob {
	return &RetentionJob{
		store: store,
		stop:  make(chan struct{}),
	}
}

// Start begins the scheduled sweeps: a full sweep daily and an OTP-only
// sweep every 6 hours.
func (j *RetentionJob) Start() {
	log.Println("Starting retention sweeper...")
	go j.loop(24*time.Hour, func() {
		report := j.RunAll(context.Background())
		log.Printf("🧹 Retention sweep done: logs=%d otps=%d incoming=%d reminders=%d overdue=%d errors=%d",
			report.MessageLogs, report.OTPs, report.IncomingMessages,
			report.ReminderLogs, report.OverdueReminderLogs, report.Errors)
	})
	go j.loop(6*time.Hour, func() {
		count, err := j.SweepOTPs(context.Background())
		if err != nil {
			log.Printf("❌ OTP sweep failed: %v", err)
			return
		}
		log.Printf("🧹 OTP sweep done: deleted=%d", count)
	})
}

// Stop halts the scheduled sweeps.
func (j *RetentionJob) Stop() {
	log.Println("Stopping retention sweeper...")
	close(j.stop)
}

func (j *RetentionJob) loop(every time.Duration, run func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			run()
		case <-j.stop:
			return
		}
	}
}

// RunAll sweeps every collection once and reports per-collection counts.
// Collection errors are logged and counted; the sweep continues.
func (j *RetentionJob) RunAll(ctx context.Context) *SweepReport {
	now := time.Now()
	report := &SweepReport{}

	var err error
	if report.MessageLogs, err = j.store.DeleteMessageLogsBefore(now.Add(-MessageLogRetention)); err != nil {
		log.Printf("❌ Failed to sweep message_log: %v", err)
		report.Errors++
	}
	if report.OTPs, err = j.store.DeleteOTPsBefore(now.Add(-OTPRetention)); err != nil {
		log.Printf("❌ Failed to sweep otp_codes: %v", err)
		report.Errors++
	}
	if report.IncomingMessages, err = j.store.DeleteIncomingBefore(now.Add(-IncomingRetention)); err != nil {
		log.Printf("❌ Failed to sweep incoming_messages: %v", err)
		report.Errors++
	}
	if report.ReminderLogs, err = j.store.DeleteReminderLogsBefore(now.Add(-ReminderLogRetention)); err != nil {
		log.Printf("❌ Failed to sweep reminder_log: %v", err)
		report.Errors++
	}
	if report.OverdueReminderLogs, err = j.store.DeleteOverdueReminderLogsBefore(now.Add(-ReminderLogRetention)); err != nil {
		log.Printf("❌ Failed to sweep overdue_reminder_log: %v", err)
		report.Errors++
	}
	return report
}

// SweepOTPs deletes only expired OTP records. Runs on a tighter cadence
// because codes go stale within a day.
func (j *RetentionJob) SweepOTPs(ctx context.Context) (int64, error) {
	return j.store.DeleteOTPsBefore(time.Now().Add(-OTPRetention))
}
