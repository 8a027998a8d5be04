package repositories

// RepositoryProvider holds all repository interfaces needed by services.
// This makes passing dependencies to the service container constructor cleaner.
type RepositoryProvider struct {
	PaydayRepo   PaydayRepositoryFacade
	PayinRepo    PayinRepositoryFacade
	TakeoverRepo TakeoverRepositoryFacade
	PayoutRepo   PayoutRepositoryFacade
	ExchangeRepo ExchangeRepositoryFacade
}
