//+build wireinject

package wire_container

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/wire"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fleet"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database"
)

var appSet = wire.NewSet(
	core.NewConfig,
	newLogger,
	newDB,
	wire.Bind(new(core.DB), new(*database.DB)),
	newEmailService,
	newUserRepository,
	newStudentRepository,
	newLibraryRepository,
	newFleetRepository,
	newAnnounceRepository,
	user.NewService,
	student.NewService,
	newLibraryService,
	fleet.NewService,
	newAnnounceService,
	validator.New,
	newTranslator,
	// DisableReqLogs stays zero; it is only flipped in tests.
	wire.Struct(new(echoapi.ServerDeps),
		"Conf", "Logger", "Validate", "Translator",
		"UserSvc", "StudentSvc", "LibrarySvc", "FleetSvc", "AnnounceSvc"),
	echoapi.NewServer,
	wire.Struct(new(App), "*"),
)

func InitializeApp() *App {
	wire.Build(appSet)
	return nil
}
