package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/internal/auth"
	"github.com/jarvas-labs/voice-server/internal/client"
)

func main() {
	var (
		serverURL    = flag.String("server", "ws://localhost:8080/ws", "websocket server URL")
		token        = flag.String("token", "", "bearer token for authentication")
		secret       = flag.String("secret", "", "JWT secret to self-sign a dev token when no token is given")
		userID       = flag.String("user", "dev-user", "user ID for the self-signed dev token")
		language     = flag.String("language", "", "conversation language hint")
		device       = flag.String("device", "", "capture device (platform default when empty)")
		sampleRate   = flag.Int("rate", 24000, "PCM sample rate in Hz")
		captureEvery = flag.Duration("interval", 500*time.Millisecond, "capture chunk interval")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	bearerToken := *token
	if bearerToken == "" {
		if *secret == "" {
			fmt.Fprintln(os.Stderr, "either -token or -secret is required")
			os.Exit(1)
		}
		authenticator := auth.NewAuthenticator([]byte(*secret), time.Hour)
		signed, err := authenticator.GenerateToken(*userID)
		if err != nil {
			logger.Fatal("Failed to sign dev token", zap.Error(err))
		}
		bearerToken = signed
	}

	recorder := client.NewFFmpegRecorder("ffmpeg", *device, *sampleRate, 1, 2, *captureEvery)
	sink := client.NewFFPlaySink("ffplay", *sampleRate, 1)
	scheduler := client.NewScheduler(client.SchedulerConfig{
		SampleRate:     *sampleRate,
		Channels:       1,
		BytesPerSample: 2,
	}, sink, nil, logger)

	callbacks := client.Callbacks{
		OnStatus: func(value string) {
			fmt.Printf("[status] %s\n", value)
		},
		OnFinalTranscript: func(text string) {
			fmt.Printf("\nyou: %s\n", text)
		},
		OnResponseDelta: func(text string) {
			fmt.Print(text)
		},
		OnResponseFinal: func(text string) {
			fmt.Println()
		},
		OnError: func(message string) {
			fmt.Printf("[error] %s\n", message)
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conversation, err := client.Dial(ctx, client.Config{
		ServerURL: *serverURL,
		Token:     bearerToken,
		Language:  *language,
	}, recorder, scheduler, callbacks, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect", zap.Error(err))
	}

	fmt.Println("Connected. Speak into the microphone; Ctrl-C to stop.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		conversation.Stop()
		conversation.Close()
	case <-conversation.Done():
	}

	scheduler.Close()
	sink.Close()
}
