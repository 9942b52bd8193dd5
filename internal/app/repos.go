package app

import (
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/repos"
)

type Repos struct {
	User              repos.UserRepo
	Group             repos.GroupRepo
	Course            repos.CourseRepo
	Lecture           repos.LectureRepo
	Material          repos.MaterialRepo
	ProcessedMaterial repos.ProcessedMaterialRepo
	Test              repos.TestRepo
	Question          repos.QuestionRepo
	TestAttempt       repos.TestAttemptRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:              repos.NewUserRepo(db, log),
		Group:             repos.NewGroupRepo(db, log),
		Course:            repos.NewCourseRepo(db, log),
		Lecture:           repos.NewLectureRepo(db, log),
		Material:          repos.NewMaterialRepo(db, log),
		ProcessedMaterial: repos.NewProcessedMaterialRepo(db, log),
		Test:              repos.NewTestRepo(db, log),
		Question:          repos.NewQuestionRepo(db, log),
		TestAttempt:       repos.NewTestAttemptRepo(db, log),
	}
}
