package api

import (
	"context"
	"fmt"
	"log"
	"time"

	authdomain "foratask-backend/internal/auth/domain"
	authRepo "foratask-backend/internal/auth/repository"
	authUsecase "foratask-backend/internal/auth/usecase"
	historydomain "foratask-backend/internal/history/domain"
	historyRepo "foratask-backend/internal/history/repository"
	historyUsecase "foratask-backend/internal/history/usecase"
	"foratask-backend/internal/notification"
	notificationdomain "foratask-backend/internal/notification/domain"
	notificationRepo "foratask-backend/internal/notification/repository"
	"foratask-backend/internal/scheduler"
	taskdomain "foratask-backend/internal/task/domain"
	taskRepo "foratask-backend/internal/task/repository"
	taskUsecasePkg "foratask-backend/internal/task/usecase"
	"foratask-backend/pkg/clock"
	"foratask-backend/pkg/config"
	"foratask-backend/pkg/events"
	"foratask-backend/pkg/fcm"
	"foratask-backend/pkg/lock"

	"gorm.io/gorm"
)

// Job names accepted by the scan command
const (
	JobOverdue    = "overdue"
	JobReminders  = "reminders"
	JobPush       = "push"
	JobRecurrence = "recurrence"
	JobRetention  = "retention"
)

// App holds every wired component of the service
type App struct {
	Config        *config.Config
	DB            *gorm.DB
	Clock         clock.Clock
	Auth          authUsecase.AuthUsecase
	Notifications *notification.Service
	Dispatcher    *notification.Dispatcher
	Engine        *taskUsecasePkg.TransitionEngine
	Tasks         taskUsecasePkg.TaskUsecase
	Recurrence    *taskUsecasePkg.RecurrenceScheduler

	closers []func() error
}

// Migrate creates or updates every table the service uses
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&taskdomain.Task{},
		&taskdomain.TaskMember{},
		&taskdomain.NotificationSchedule{},
		&notificationdomain.Notification{},
		&historydomain.CompletionRecord{},
		&authdomain.PushToken{},
	)
}

// NewApp wires repositories, services and usecases. Push delivery, task
// events and the shared lock are optional and fall back to local behavior
// when their settings are missing.
func NewApp(ctx context.Context, cfg *config.Config, db *gorm.DB, clk clock.Clock) (*App, error) {
	app := &App{
		Config: cfg,
		DB:     db,
		Clock:  clk,
	}

	// Initialize repositories (dependency injection)
	pushTokenRepo := authRepo.NewPushTokenRepository(db)
	taskRepository := taskRepo.NewGormTaskRepository(db)
	notifRepository := notificationRepo.NewGormNotificationRepository(db)
	historyRepository := historyRepo.NewGormHistoryRepository(db)

	app.Auth = authUsecase.NewAuthUsecase(pushTokenRepo, cfg)

	// Initialize FCM Client (optional, notifications are stored without it)
	var push notification.PushSender
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
		} else {
			push = fcmClient
			log.Printf("[DEBUG] FCM client initialized successfully")
		}
	} else {
		log.Printf("[DEBUG] No Firebase credentials configured, FCM disabled")
	}

	// Task events (Pub/Sub), only when a project is configured
	var publisher events.Publisher = events.Nop{}
	if cfg.GoogleProjectID != "" {
		pubsubPublisher, err := events.NewPubSubPublisher(ctx, cfg.GoogleProjectID, cfg.TaskEventsTopic, cfg.GoogleCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize task event publisher: %v", err)
		} else {
			publisher = pubsubPublisher
			app.closers = append(app.closers, pubsubPublisher.Close)
			log.Printf("[DEBUG] Publishing task events to topic: %s", cfg.TaskEventsTopic)
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, task events disabled")
	}

	// Per-task lock, shared through Redis when more than one process runs
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisAddr != "" {
		redisClient, err := lock.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = lock.NewRedisLocker(redisClient, "foratask:", cfg.TaskLockTTL)
		app.closers = append(app.closers, func() error {
			redisClient.Close()
			return nil
		})
		log.Printf("[DEBUG] Using redis task locks at %s", cfg.RedisAddr)
	}

	app.Notifications = notification.NewService(notifRepository, app.Auth, push, clk, cfg.NotificationTTL, notification.PushConfig{
		Sound:     cfg.PushSound,
		Channel:   cfg.PushChannel,
		BatchSize: cfg.PushBatchSize,
	})
	app.Dispatcher = notification.NewDispatcher(taskRepository, notifRepository, app.Notifications, clk)

	recorder := historyUsecase.NewRecorder(historyRepository, clk)
	app.Engine = taskUsecasePkg.NewTransitionEngine(taskRepository, app.Notifications, recorder, locker, publisher, clk)
	app.Tasks = taskUsecasePkg.NewTaskUsecase(taskRepository, app.Engine)
	app.Recurrence = taskUsecasePkg.NewRecurrenceScheduler(taskRepository, recorder, locker, publisher, clk)

	return app, nil
}

// Jobs returns the background passes with their cadences
func (a *App) Jobs() []scheduler.Job {
	every := scheduler.Every(a.Config.ScanInterval)
	return []scheduler.Job{
		{Name: JobOverdue, Cadence: every, Immediate: true, Run: a.runOverdue},
		{Name: JobReminders, Cadence: every, Immediate: true, Run: a.runReminders},
		{Name: JobPush, Cadence: every, Immediate: true, Run: a.runPush},
		{Name: JobRecurrence, Cadence: scheduler.Daily(), Run: a.runRecurrence},
		{Name: JobRetention, Cadence: scheduler.Daily(), Run: a.runRetention},
	}
}

// NewScheduler registers every job on a scheduler driven by the app clock
func (a *App) NewScheduler() *scheduler.Scheduler {
	s := scheduler.New(a.Clock, time.Second)
	for _, job := range a.Jobs() {
		s.Add(job)
	}
	return s
}

// Router builds the HTTP handler for the app
func (a *App) Router() *Handler {
	return NewHandler(a.Auth, a.Tasks, a.Engine, a.Notifications)
}

// Close releases external clients
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("[WARN] Failed to close client: %v", err)
		}
	}
	a.closers = nil
}

func (a *App) runOverdue(ctx context.Context) error {
	result, err := a.Dispatcher.RunOverdueScan(ctx)
	if err != nil {
		return err
	}
	if result.Tasks > 0 {
		log.Printf("[TaskScheduler] Overdue scan: %d tasks, %d notifications, %d errors", result.Tasks, result.Notifications, result.Errors)
	}
	return nil
}

func (a *App) runReminders(ctx context.Context) error {
	result, err := a.Dispatcher.RunReminderScan(ctx)
	if err != nil {
		return err
	}
	if result.Tasks > 0 {
		log.Printf("[TaskScheduler] Reminder scan: %d tasks, %d notifications, %d errors", result.Tasks, result.Notifications, result.Errors)
	}
	return nil
}

func (a *App) runPush(ctx context.Context) error {
	result, err := a.Dispatcher.RunPushDelivery(ctx)
	if err != nil {
		return err
	}
	if result.Notifications > 0 {
		log.Printf("[TaskScheduler] Push delivery: %d notifications, %d sent, %d failed, %d without device", result.Notifications, result.Sent, result.Failed, result.NoEndpoint)
	}
	return nil
}

func (a *App) runRecurrence(ctx context.Context) error {
	result, err := a.Recurrence.Run(ctx)
	if err != nil {
		return err
	}
	log.Printf("[TaskScheduler] Recurrence: %d due, %d rolled over, %d recorded, %d errors", result.Tasks, result.RolledOver, result.Recorded, result.Errors)
	return nil
}

func (a *App) runRetention(ctx context.Context) error {
	deleted, err := a.Dispatcher.RunRetentionSweep(ctx)
	if err != nil {
		return err
	}
	log.Printf("[TaskScheduler] Retention sweep removed %d notifications", deleted)
	return nil
}
