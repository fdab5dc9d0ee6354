package models

// AllModels lists every table in migration order.
func AllModels() []any {
	return []any{
		&User{},
		&Resource{},
		&Team{},
		&Membership{},
		&AccessEntry{},
		&BackingObject{},
		&ResourceObjectLink{},
		&UploadSession{},
		&ThumbnailTask{},
	}
}
