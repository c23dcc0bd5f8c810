package prompt

type GuardedSystemData struct {
	RefusalPhrase string
}

type GuardedUserData struct {
	IntentID string
	DataJSON string
	Task     string
}
