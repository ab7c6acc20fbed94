package main

import (
	"net/http"
	"os"
	"os/signal"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/roomcast-chat/roomcast/auth"
	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/directory"
	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/mention"
	"github.com/roomcast-chat/roomcast/notify"
	"github.com/roomcast-chat/roomcast/persistence"
	"github.com/roomcast-chat/roomcast/registry"
	"github.com/roomcast-chat/roomcast/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "ws service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	sessionHub *ws.SessionHub
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	verifier, err := auth.NewVerifier(globalConfig)
	if err != nil {
		panic(err)
	}

	dir := directory.NewDirectory(persister)
	reg := registry.New(persister)

	extractor, err := mention.NewExtractor(globalConfig.MentionConfig)
	if err != nil {
		panic(err)
	}
	resolver, err := mention.NewResolver(dir, extractor.Field(), globalConfig.MentionConfig)
	if err != nil {
		panic(err)
	}
	notifier, err := notify.NewNotifier(globalConfig)
	if err != nil {
		panic(err)
	}
	dispatcher := notify.NewDispatcher(reg, extractor, resolver, notifier, globalConfig.NotificationsConfig.QueueSize)
	go dispatcher.Run()
	defer dispatcher.Stop()

	sessionHub, err = ws.NewSessionHub(globalConfig, reg, persister, dispatcher, verifier, dir)
	if err != nil {
		panic(err)
	}
	defer sessionHub.Close()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		sessionHub.Close()
		dispatcher.Stop()
		persister.Close()
		os.Exit(0)
	}()

	setupRoutes()
	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(*addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

func setupRoutes() {
	router := mux.NewRouter()
	router.HandleFunc("/ws", websocketHandler).Methods(http.MethodGet)
	http.Handle("/", router)
}

// Handle incoming websockets. The session token is verified before the
// upgrade: an unauthenticated connection is rejected with 401 and never sees
// the event surface.
func websocketHandler(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	token := vals.Get("token")
	provider := vals.Get("provider")

	session, err := sessionHub.Authenticate(r.Context(), token, provider, nil)
	if err != nil {
		globals.AppLogger.Debug("authentication failed", "error", err)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// Upgrade HTTP request to Websocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		sessionHub.Disconnect(session)
		return
	}

	doneChan := make(chan struct{})
	client := ws.NewClient(sessionHub, conn, session, doneChan)
	sessionHub.BindSink(session, client)

	go client.WriteLoop()
	client.ReadLoop()
}
