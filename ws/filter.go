package ws

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/roomcast-chat/roomcast/filter"
	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/types"
)

// compileFilter compiles a target filter expression. An empty expression or a
// compile error yields nil, which delivers to everyone.
func compileFilter(filterExpr string) *vm.Program {
	if filterExpr == "" {
		return nil
	}
	prog, err := expr.Compile(filterExpr, expr.Env(filter.Env{}))
	if err != nil {
		globals.AppLogger.Error("could not compile filter", "error", err)
		return nil
	}
	return prog
}

// runFilter decides whether a message reaches one particular session. A nil
// program delivers to everyone; evaluation errors suppress delivery to that
// session.
func runFilter(prog *vm.Program, room *types.Room, msg *types.Message, m *member) bool {
	if prog == nil {
		return true
	}
	env := filter.Env{
		Room: filter.Room{
			Id:   room.Id,
			Name: room.Name,
		},
		Author: filter.User{
			Id:       msg.AuthorId,
			Username: msg.AuthorNick,
		},
		Target: filter.User{
			Id:       m.user.Id,
			Username: m.user.Username,
		},
		Message: msg.Text,
		Created: msg.CreatedAt.Unix(),
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		globals.AppLogger.Error("could not run filter", "error", err)
		return false
	}
	if bRes, ok := res.(bool); ok && bRes {
		return true
	}
	return false
}
