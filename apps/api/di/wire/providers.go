package wire_container

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/announce"
	"github.com/trezcool/shule/core/fleet"
	"github.com/trezcool/shule/core/library"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

// App bundles everything the entrypoint needs out of the container.
type App struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *database.DB
	Validate   *validator.Validate
	Translator ut.Translator
	Server     *echoapi.Server
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, logger core.Logger) *database.DB {
	setUp := func() (*database.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newUserRepository(db *database.DB) user.Repository {
	return sqlxrepos.NewUserRepository(db)
}

func newStudentRepository(db *database.DB) student.Repository {
	return sqlxrepos.NewStudentRepository(db)
}

func newLibraryRepository(db *database.DB) library.Repository {
	return sqlxrepos.NewLibraryRepository(db)
}

func newFleetRepository(db *database.DB) fleet.Repository {
	return sqlxrepos.NewFleetRepository(db)
}

func newAnnounceRepository(db *database.DB) announce.Repository {
	return sqlxrepos.NewAnnounceRepository(db)
}

// newLibraryService also wires the lending engine back into the roster
// service; the two reference each other.
func newLibraryService(
	db core.DB,
	repo library.Repository,
	stdSvc *student.Service,
	mailSvc core.EmailService,
	conf *core.Config,
) *library.Service {
	libSvc := library.NewService(db, repo, studentDirectory{stdSvc}, mailSvc, conf)
	stdSvc.AttachBorrowChecker(libSvc)
	return libSvc
}

func newAnnounceService(repo announce.Repository, usrSvc *user.Service, mailSvc core.EmailService) *announce.Service {
	return announce.NewService(repo, recipientDirectory{usrSvc}, mailSvc)
}

type studentDirectory struct {
	svc *student.Service
}

func (dir studentDirectory) GetStudent(ctx context.Context, id string) (library.StudentInfo, error) {
	std, err := dir.svc.GetByID(ctx, id)
	if err != nil {
		return library.StudentInfo{}, err
	}
	return library.StudentInfo{ID: std.ID, Name: std.Name, Email: std.Email}, nil
}

type recipientDirectory struct {
	svc *user.Service
}

func (dir recipientDirectory) AudienceEmails(ctx context.Context, aud announce.Audience) ([]mail.Address, error) {
	var prefix string
	switch aud {
	case announce.AudienceStudents:
		prefix = user.RoleStudent
	case announce.AudienceTeachers:
		prefix = user.RoleTeacher
	}

	users, err := dir.svc.QueryEmailsByRolePrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	addrs := make([]mail.Address, 0, len(users))
	for _, usr := range users {
		addrs = append(addrs, mail.Address{Name: usr.Name, Address: usr.Email})
	}
	return addrs, nil
}
