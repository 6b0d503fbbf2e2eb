package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/classroom/internal/api"
	"github.com/your-org/classroom/internal/api/ws"
	"github.com/your-org/classroom/internal/config"
	"github.com/your-org/classroom/internal/observability"
	"github.com/your-org/classroom/internal/queue"
	"github.com/your-org/classroom/internal/storage"
	"github.com/your-org/classroom/internal/vision"
	"github.com/your-org/classroom/pkg/dto"
)

// eventWireFormat decodes a subset of the fields of
// adapters.eventWireFormat, the payload published on events.<sessionID>.
type eventWireFormat struct {
	SessionID      string    `json:"session_id"`
	TrackID        int       `json:"track_id"`
	EventType      string    `json:"event_type"`
	Timestamp      time.Time `json:"timestamp"`
	StudentID      string    `json:"student_id,omitempty"`
	Confidence     float32   `json:"confidence"`
	PostureScore   float32   `json:"posture_score,omitempty"`
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting classroom API service", "port", cfg.Server.Port)

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		var wire eventWireFormat
		if err := json.Unmarshal(msg.Data(), &wire); err != nil {
			return err
		}

		sessionID, err := uuid.Parse(wire.SessionID)
		if err != nil {
			return fmt.Errorf("parse session id: %w", err)
		}

		ev := dto.SessionEventResponse{
			SessionID:      sessionID,
			TrackID:        wire.TrackID,
			EventType:      wire.EventType,
			Timestamp:      wire.Timestamp.Format(time.RFC3339),
			MatchScore:     wire.Confidence,
			PostureScore:   wire.PostureScore,
			CreatedAt:      time.Now().Format(time.RFC3339),
		}
		if wire.StudentID != "" {
			if id, err := uuid.Parse(wire.StudentID); err == nil {
				ev.MatchedStudent = &id
			}
		}

		hub.BroadcastEvent(&dto.WSEvent{
			Type:      "session_event",
			SessionID: sessionID,
			Data:      ev,
		})
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Broadcast annotated frame output for live viewing.
	err = consumer.ConsumeFramesOut(ctx, "api-frames-out", func(ctx context.Context, msg jetstream.Msg) error {
		sessionIDStr := strings.TrimPrefix(msg.Subject(), queue.FramesOutSubjectBase+".")
		sessionID, err := uuid.Parse(sessionIDStr)
		if err != nil {
			return fmt.Errorf("parse session id from subject %s: %w", msg.Subject(), err)
		}

		hub.BroadcastEvent(&dto.WSEvent{
			Type:      "frame_result",
			SessionID: sessionID,
			Frame:     json.RawMessage(msg.Data()),
		})
		return nil
	})
	if err != nil {
		slog.Warn("start frame output consumer", "error", err)
	}

	// Face embedding for the student enrollment/search endpoints requires
	// the same ONNX models the worker runs; loaded here too so API
	// requests don't depend on a session being active.
	var embedFn func([]byte) ([]float32, float32, error)

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed — face enrollment/search will be unavailable", "error", err)
	} else {
		visionAdapters, err := vision.NewAdapters(cfg.Vision)
		if err != nil {
			slog.Warn("vision models unavailable — face enrollment/search will be unavailable", "error", err)
		} else {
			embedFn = func(imageData []byte) ([]float32, float32, error) {
				img, err := decodeImage(imageData)
				if err != nil {
					return nil, 0, err
				}
				embedding, found, err := visionAdapters.Faces.Embed(context.Background(), img)
				if err != nil {
					return nil, 0, err
				}
				if !found {
					return nil, 0, fmt.Errorf("no face found")
				}
				return embedding, 1.0, nil
			}
			defer visionAdapters.Close()
			defer ort.DestroyEnvironment()
			slog.Info("face embedding model ready for API")
		}
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		DB:       db,
		MinIO:    minioStore,
		Producer: producer,
		Hub:      hub,
		EmbedFn:  embedFn,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
