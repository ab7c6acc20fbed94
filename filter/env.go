package filter

/*
Here the Env used in the broadcast target filters is defined.
Once this struct is fixed, it should not be changed, otherwise filters
attached to messages may not compile any more (f.e. if properties are renamed).
*/

type User struct {
	Id       string
	Username string
}

type Room struct {
	Id   string
	Name string
}

type Env struct {
	Room    Room
	Author  User
	Target  User
	Message string
	Created int64
}
