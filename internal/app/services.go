package app

import (
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/services"
)

type Services struct {
	Auth        services.AuthService
	GigaChat    services.GigaChatClient
	MediaTools  services.MediaToolsService
	Transcriber services.TranscriberRegistry
	Store       services.MaterialStore
	Extraction  services.ExtractionService
	Embedding   services.EmbeddingService
	QuestionGen services.QuestionGenService
	PublishLock services.PublishLock
	Publisher   services.PublicationService
	TestAssign  services.TestAssignService
}

func wireServices(db *gorm.DB, log *logger.Logger, r Repos) (Services, error) {
	log.Info("Wiring services...")

	auth, err := services.NewAuthService(log, r.User)
	if err != nil {
		return Services{}, err
	}
	gigachat, err := services.NewGigaChatClient(log)
	if err != nil {
		return Services{}, err
	}

	media := services.NewMediaToolsService(log)
	transcriber := services.NewTranscriberRegistry(log, nil)
	store := services.NewFSMaterialStore(log)
	extraction := services.NewExtractionService(log, store, media, transcriber)
	embedding := services.NewEmbeddingService(log, gigachat)
	questionGen := services.NewQuestionGenService(log, gigachat)
	lock := services.NewPublishLock(log)

	publisher := services.NewPublicationService(
		log, db,
		r.Lecture, r.Material, r.ProcessedMaterial, r.Test, r.Question,
		extraction, embedding, questionGen, lock,
	)
	testAssign := services.NewTestAssignService(
		log, db,
		r.Lecture, r.Course, r.ProcessedMaterial, r.Test, r.Question,
		r.TestAttempt, r.User, r.Group,
		questionGen,
	)

	return Services{
		Auth:        auth,
		GigaChat:    gigachat,
		MediaTools:  media,
		Transcriber: transcriber,
		Store:       store,
		Extraction:  extraction,
		Embedding:   embedding,
		QuestionGen: questionGen,
		PublishLock: lock,
		Publisher:   publisher,
		TestAssign:  testAssign,
	}, nil
}
