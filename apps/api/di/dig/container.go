package dig_container

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

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

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*database.DB, core.DB) {
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
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
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

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newUserRepository))
	must(c.Provide(newStudentRepository))
	must(c.Provide(newLibraryRepository))
	must(c.Provide(newFleetRepository))
	must(c.Provide(newAnnounceRepository))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(student.NewService))
	must(c.Provide(newLibraryService))
	must(c.Provide(fleet.NewService))
	must(c.Provide(newAnnounceService))
	must(c.Provide(newServerDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

func newServerDeps(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	usrSvc *user.Service,
	stdSvc *student.Service,
	libSvc *library.Service,
	fleetSvc *fleet.Service,
	annSvc *announce.Service,
) echoapi.ServerDeps {
	return echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		UserSvc:     usrSvc,
		StudentSvc:  stdSvc,
		LibrarySvc:  libSvc,
		FleetSvc:    fleetSvc,
		AnnounceSvc: annSvc,
	}
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
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
