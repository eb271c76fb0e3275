package main

import (
	"bufio"
	"crypto/cipher"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/covaultio/covault/internal/client/storage"
)

var (
	version   string
	buildDate string
)

// repl runs the interactive shell loop, accepting commands against the
// covault API.
func repl(api *storage.API, ls *storage.LocalStorage, aead cipher.AEAD) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("covault> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, grant <handle> <subject> <kind>, read <handle>, decrypt <handle>, cache, get <handle>, forget <handle>, exit")
		case "grant":
			if len(args) < 4 {
				fmt.Println("Usage: grant <handle> <subject> <persistent|transient>")
				continue
			}
			if err := api.Grant(args[1], args[2], args[3]); err != nil {
				fmt.Println("Error:", err)
				continue
			}
			fmt.Println("Granted")
		case "read":
			if len(args) < 2 {
				fmt.Println("Usage: read <handle>")
				continue
			}
			cleartext, err := api.Read(args[1])
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			fmt.Println("Value:", base64.StdEncoding.EncodeToString(cleartext))
			if err := ls.Put(aead, args[1], "", cleartext, "guarded read"); err == nil {
				_ = ls.Save()
			}
		case "decrypt":
			if len(args) < 2 {
				fmt.Println("Usage: decrypt <handle>")
				continue
			}
			cleartexts, err := api.Decrypt(args[1:])
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			for i, v := range cleartexts {
				fmt.Printf("%s: %s\n", args[1+i], base64.StdEncoding.EncodeToString(v))
				if err := ls.Put(aead, args[1+i], "", v, "user decryption"); err == nil {
					_ = ls.Save()
				}
			}
		case "cache":
			ls.List()
		case "get":
			if len(args) < 2 {
				fmt.Println("Usage: get <handle>")
				continue
			}
			v, err := ls.Get(aead, args[1])
			if err != nil {
				fmt.Println("Error:", err)
				continue
			}
			if v == nil {
				fmt.Println("Not cached")
			} else {
				fmt.Println("Value:", base64.StdEncoding.EncodeToString(v))
			}
		case "forget":
			if len(args) < 2 {
				fmt.Println("Usage: forget <handle>")
				continue
			}
			if ls.Delete(args[1]) {
				_ = ls.Save()
				fmt.Println("Forgotten")
			} else {
				fmt.Println("Not cached")
			}
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

// main parses command-line flags and dispatches to the register or shell commands.
func main() {
	var (
		cmd      string
		baseURL  string
		certFile string
		keyFile  string
		caFile   string
		subject  string
		showVer  bool
	)

	flag.StringVar(&cmd, "cmd", "", "command: register | shell")
	flag.StringVar(&baseURL, "url", "https://localhost:8443", "server base URL")
	flag.StringVar(&certFile, "cert", "client.crt", "path to client cert")
	flag.StringVar(&keyFile, "key", "client.key", "path to client key")
	flag.StringVar(&caFile, "ca", "certs/ca.crt", "path to CA cert")
	flag.StringVar(&subject, "subject", "", "subject identity for registration")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("covault Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	switch cmd {
	case "register":
		if subject == "" {
			log.Fatal("please provide -subject=identity")
		}
		if err := storage.Register(baseURL, subject, caFile); err != nil {
			log.Fatal(err)
		}
	case "shell":
		client, err := storage.LoadClientCertificate(certFile, keyFile, caFile)
		if err != nil {
			log.Fatal(err)
		}
		ls := &storage.LocalStorage{}
		_ = ls.Load()

		certPEM, err := os.ReadFile(certFile)
		if err != nil {
			log.Fatal(err)
		}
		aead, err := storage.NewAEADFromPEM(certPEM)
		if err != nil {
			log.Fatal(err)
		}

		api := &storage.API{Client: client, BaseURL: baseURL}
		repl(api, ls, aead)
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
}
