package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/displaywin"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Handler attaches a display websocket to the window a controller opened
// for it: GET /ws/display?encounter={id}&window={name}.
func Handler(reg *Registry, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		encounterID := r.URL.Query().Get("encounter")
		if encounterID == "" {
			http.Error(w, "missing encounter", http.StatusBadRequest)
			return
		}
		name := r.URL.Query().Get("window")
		if name == "" {
			name = displaywin.WindowName
		}

		win := reg.lookup(encounterID, name)
		if win == nil {
			http.Error(w, "no display window opened", http.StatusNotFound)
			return
		}
		if err := win.attach(); err != nil {
			status := http.StatusConflict
			if !errors.Is(err, ErrAlreadyAttached) {
				status = http.StatusGone
			}
			http.Error(w, err.Error(), status)
			return
		}
		// The window is attached from here on; however this returns, it ends
		// closed so the controller's poll notices.
		defer win.Close()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			reg.log.Warn("websocket accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := reg.log.With(
			zap.String("encounter", encounterID),
			zap.String("window", name),
			zap.String("conn", win.ID()),
		)
		log.Info("display attached")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case <-win.done:
					conn.Close(websocket.StatusNormalClosure, "display closed")
					return
				case data := <-win.out:
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					err := conn.Write(ctx, websocket.MessageText, data)
					cancel()
					if err != nil {
						log.Debug("write failed", zap.Error(err))
						win.Close()
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Info("display detached")
				default:
					log.Debug("display read ended", zap.Error(err))
				}
				return
			}
			win.receive(data)
		}
	}
}
