package mongodb

const (
	UsersCollection = "users" // For local user records
)
