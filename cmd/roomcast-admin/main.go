package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/persistence"
	"github.com/roomcast-chat/roomcast/registry"
	"github.com/roomcast-chat/roomcast/types"
)

// A very simple CLI tool for the administration of roomcast rooms and users.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	reg := registry.New(persister)

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms, users or history",
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all durable room records.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			rooms, err := reg.ListRooms()
			if err != nil {
				globals.AppLogger.Error("could not get rooms", "error", err)
				return
			}
			printJSON(rooms)
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room name]",
		Short: "Show room",
		Long:  `show room prints detail information about the room with the given name.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room, err := reg.Get(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			printJSON(room)
		},
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `show users lists all registered users.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			users, err := persister.GetUsers()
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			printJSON(users)
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			if err := persister.GetUser(&user); err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			printJSON(user)
		},
	}
	var cmdShowHistory = &cobra.Command{
		Use:   "history [room name]",
		Short: "Show message history",
		Long:  `show history dumps the message log of the room with the given name, oldest first.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room, err := reg.Get(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			var t time.Time
			messages, err := persister.GetMessageHistory(room.Id, t, time.Now().Add(time.Minute), 0, 0)
			if err != nil {
				globals.AppLogger.Error("could not get history", "error", err)
				return
			}
			printJSON(messages)
		},
	}

	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update a user",
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Set user",
		Long:  `set user creates or updates a user with the given JSON definition. If the definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			user := types.User{}
			if err := json.NewDecoder(r).Decode(&user); err != nil {
				globals.AppLogger.Error("could not decode user", "error", err)
				return
			}
			if user.Id == "" || user.Username == "" {
				globals.AppLogger.Error("user needs id and username")
				return
			}
			if err := persister.StoreUser(user); err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
		},
	}

	var roomMode string
	var roomOwner string
	var cmdCreate = &cobra.Command{
		Use:   "create",
		Short: "create a room",
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdCreateRoom = &cobra.Command{
		Use:   "room [room name]",
		Short: "Create room",
		Long:  `create room registers a new room. The name must be globally unique.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mode := types.MembershipMode(roomMode)
			room, err := reg.Create(args[0], roomOwner, mode)
			if err != nil {
				globals.AppLogger.Error("could not create room", "error", err)
				return
			}
			printJSON(room)
		},
	}
	cmdCreateRoom.Flags().StringVar(&roomMode, "mode", string(types.MembershipOwnedPersistent), "membership mode (open_ephemeral or owned_persistent)")
	cmdCreateRoom.Flags().StringVar(&roomOwner, "owner", "", "owner user id (required for owned_persistent)")

	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "delete a room or user",
		Args:  cobra.MinimumNArgs(0),
	}
	var requester string
	var cmdDeleteRoom = &cobra.Command{
		Use:   "room [room name]",
		Short: "Delete room",
		Long:  `delete room removes the room record and its member set on behalf of the owner. Messages are retained.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room, err := reg.Get(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			if err := reg.Delete(room.Id, requester); err != nil {
				globals.AppLogger.Error("could not delete room", "error", err)
				return
			}
		},
	}
	cmdDeleteRoom.Flags().StringVar(&requester, "as", "", "requesting user id (must be the owner)")
	var cmdDeleteUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Delete user",
		Long:  `delete user removes the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			if err := persister.GetUser(&user); err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			if err := persister.DeleteUser(&user); err != nil {
				globals.AppLogger.Error("could not delete user", "error", err)
				return
			}
		},
	}

	var cmdMember = &cobra.Command{
		Use:   "member",
		Short: "manage the durable member set of a room",
		Args:  cobra.MinimumNArgs(0),
	}
	var memberRequester string
	var cmdMemberAdd = &cobra.Command{
		Use:   "add [room name] [user id]",
		Short: "Add member",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			room, err := reg.Get(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			if err := reg.AddMember(room.Id, memberRequester, args[1]); err != nil {
				globals.AppLogger.Error("could not add member", "error", err)
				return
			}
		},
	}
	var cmdMemberRemove = &cobra.Command{
		Use:   "remove [room name] [user id]",
		Short: "Remove member",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			room, err := reg.Get(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			if err := reg.RemoveMember(room.Id, memberRequester, args[1]); err != nil {
				globals.AppLogger.Error("could not remove member", "error", err)
				return
			}
		},
	}
	cmdMemberAdd.Flags().StringVar(&memberRequester, "as", "", "requesting user id (must be the owner)")
	cmdMemberRemove.Flags().StringVar(&memberRequester, "as", "", "requesting user id (must be the owner)")

	var rootCmd = &cobra.Command{Use: "roomcast-admin"}
	rootCmd.AddCommand(cmdShow, cmdSet, cmdCreate, cmdDelete, cmdMember)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowUsers, cmdShowUser, cmdShowHistory)
	cmdSet.AddCommand(cmdSetUser)
	cmdCreate.AddCommand(cmdCreateRoom)
	cmdDelete.AddCommand(cmdDeleteRoom, cmdDeleteUser)
	cmdMember.AddCommand(cmdMemberAdd, cmdMemberRemove)
	rootCmd.Execute()
}

func printJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		globals.AppLogger.Error("could not marshal", "error", err)
		return
	}
	fmt.Println(string(data))
}
