/*
Copyright 2025 Nemo(shengyi) Lv

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command cubed boots Cube's 20 shards and serves the HTTP command surface
// on PORT (default 4000) against DATA_DIR (default ".").
package main

import (
	"context"
	"cube/engine"
	"cube/httpapi"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

func main() {
	dataDir := getenv("DATA_DIR", ".")
	port := getenv("PORT", "4000")

	opts := engine.DefaultOptions(dataDir)
	if n, err := strconv.ParseUint(os.Getenv("CUBE_BLOOM_SIZE"), 10, 32); err == nil && n > 0 {
		opts.BloomSize = uint32(n)
	}
	if n, err := strconv.Atoi(os.Getenv("CUBE_BLOOM_HASHES")); err == nil && n > 0 {
		opts.BloomHashes = n
	}

	eng, err := engine.Open(opts)
	if err != nil {
		log.Fatalf("cube: open %s: %v", dataDir, err)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpapi.New(eng),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("cube: listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("cube: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("cube: shutdown error: %v", err)
	}
	if err := eng.Close(); err != nil {
		log.Printf("cube: close error: %v", err)
	}
	log.Println("cube: stopped")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
