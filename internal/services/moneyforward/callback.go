package moneyforward

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"billsync/internal/services"
)

// CallbackResult carries what the OAuth redirect delivered.
type CallbackResult struct {
	Code  string
	State string
}

// WaitForCallback runs a one-shot HTTP server on the redirect URI's
// host and port, waiting for the provider to deliver the authorization
// code. It verifies the state parameter before returning.
func WaitForCallback(ctx context.Context, redirectURI, expectedState string) (CallbackResult, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return CallbackResult{}, services.Wrap(services.ErrAuth, "moneyforward", "callback", "parse redirect URI", err)
	}
	listener, err := net.Listen("tcp", parsed.Host)
	if err != nil {
		return CallbackResult{}, services.Wrap(services.ErrAuth, "moneyforward", "callback", "listen on "+parsed.Host, err)
	}
	defer listener.Close()

	results := make(chan CallbackResult, 1)
	errs := make(chan error, 1)

	mux := http.NewServeMux()
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if errCode := query.Get("error"); errCode != "" {
			http.Error(w, "Authorization failed. You may close this window.", http.StatusBadRequest)
			errs <- services.Wrap(services.ErrAuth, "moneyforward", "callback", "provider returned error: "+errCode, nil)
			return
		}
		code := query.Get("code")
		state := query.Get("state")
		if code == "" {
			http.Error(w, "Missing authorization code.", http.StatusBadRequest)
			errs <- services.Wrap(services.ErrAuth, "moneyforward", "callback", "redirect missing code parameter", nil)
			return
		}
		if state != expectedState {
			http.Error(w, "State mismatch. You may close this window.", http.StatusBadRequest)
			errs <- services.Wrap(services.ErrAuth, "moneyforward", "callback", "state mismatch", nil)
			return
		}
		fmt.Fprintln(w, "Authorization complete. You may close this window.")
		results <- CallbackResult{Code: code, State: state}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errs <- services.Wrap(services.ErrAuth, "moneyforward", "callback", "callback server failed", serveErr)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	select {
	case result := <-results:
		return result, nil
	case err := <-errs:
		return CallbackResult{}, err
	case <-ctx.Done():
		return CallbackResult{}, services.Wrap(services.ErrAuth, "moneyforward", "callback", "authorization wait cancelled", ctx.Err())
	}
}
