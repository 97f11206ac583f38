package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/visionally/internal/assist"
	"github.com/MrWong99/visionally/internal/config"
	"github.com/MrWong99/visionally/pkg/provider/query"
	"github.com/MrWong99/visionally/pkg/provider/speech"
)

func newQueryCmd() *cobra.Command {
	var (
		configPath string
		kindName   string
		imagePath  string
		speak      bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Describe a single image with a one-shot query",
		Example: "  visionally query --kind text --image photo.jpg\n" +
			"  visionally query --kind color --image shirt.png --speak",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := assist.ParseKind(kindName)
			if err != nil {
				return err
			}
			img, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			cfg, err := loadConfig(configPath, true)
			if err != nil {
				return err
			}

			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			p, err := reg.CreateQuery(cfg.Providers.Query)
			if err != nil {
				return fmt.Errorf("create query provider %q: %w", cfg.Providers.Query.Name, err)
			}
			var sink speech.Sink
			if speak {
				if sink, err = buildSpeech(cfg, reg); err != nil {
					return err
				}
			}
			return oneShot(cmd.Context(), cmd.OutOrStdout(), oneShotRequest{
				Provider:    p,
				Image:       img,
				Kind:        kind,
				ColorVision: assist.ColorVision(cfg.Assistant.ColorVision),
				Timeout:     cfg.Assistant.QueryTimeout,
				Speech:      sink,
				Rate:        cfg.Assistant.SpeechRate,
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file (defaults are used if missing)")
	cmd.Flags().StringVar(&kindName, "kind", "object", "query kind: object, text or color")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to a JPEG or PNG image")
	cmd.Flags().BoolVar(&speak, "speak", false, "also announce the result through the speech provider")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

type oneShotRequest struct {
	Provider    query.Provider
	Image       []byte
	Kind        assist.Kind
	ColorVision assist.ColorVision
	Timeout     time.Duration
	Speech      speech.Sink
	Rate        float64
}

// oneShot sends the image with the kind's prompt and prints the answer. An
// empty answer prints the same notice the assistant speaks.
func oneShot(ctx context.Context, w io.Writer, req oneShotRequest) error {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	announce := func(text string) {
		if req.Speech != nil {
			req.Speech.Announce(text, req.Rate)
		}
	}

	announce(req.Kind.Label())
	mime := http.DetectContentType(req.Image)
	text, err := req.Provider.Request(ctx, req.Image, mime, req.Kind.Prompt(req.ColorVision))
	if err != nil {
		announce(assist.MsgQueryError)
		return &assist.QueryError{Kind: req.Kind, Trigger: "manual", Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = assist.MsgNoResults
	}
	announce(text)
	_, err = fmt.Fprintln(w, text)
	return err
}
