package main

import (
	"context"
	"log"

	"github.com/talentlink/messaging/client"
	"github.com/talentlink/messaging/config"
	"github.com/talentlink/messaging/db"
	"github.com/talentlink/messaging/mailingservices"
	"github.com/talentlink/messaging/server"
	"github.com/talentlink/messaging/services"
	"github.com/talentlink/messaging/store"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if conf.CurrentUserID == "" {
		log.Fatal("TALENTLINK_CURRENT_USER_ID must be set")
	}

	messagingClient := client.NewMessagingClient(conf)
	messageStore := store.NewMessageStore(conf.CurrentUserID)
	conversationStore := store.NewConversationStore()
	directory := store.NewParticipantDirectory(messagingClient)

	var snapshots db.SnapshotRepository
	if conf.PostgresHost != "" {
		gormDB := db.GetDB(conf)
		snapshots = db.NewSnapshotRepo(gormDB)
	}

	var notifier services.Notifier
	if conf.MailgunApiKey != "" {
		mailgunClient := &mailingservices.Mailgun{}
		mailgunClient.Init(conf)
		notifier = mailgunClient
	}

	syncService := services.NewSyncService(
		messagingClient,
		messageStore,
		conversationStore,
		directory,
		snapshots,
		notifier,
		conf,
	)
	syncService.WarmStart(context.Background())

	s := &server.Server{
		Config:      conf,
		SyncService: syncService,
		Compose:     services.NewComposeSession(),
		Directory:   directory,
	}
	s.Start()
}
