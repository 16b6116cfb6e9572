// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.arvados.org/arvados.git/lib/cmd"
	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/websocket"
)

const (
	binaryName   = "mas5"
	runtimeImage = "mas5-runtime"
)

var containerEventTypes = []string{"stderr", "crunch-run", "crunchstat", "update"}

type containerEvent struct {
	Status     int
	ObjectUUID string `json:"object_uuid"`
	EventType  string `json:"event_type"`
	Properties struct {
		Text string
	}
}

// eventClient relays websocket events about subscribed objects to
// channels. It reconnects as needed until Close is called.
type eventClient struct {
	*arvados.Client
	subscribers map[string]map[chan<- containerEvent]int
	closing     chan struct{}
	conn        *websocket.Conn
	mtx         sync.Mutex
}

func subscribeRequest(method, uuid string) map[string]interface{} {
	return map[string]interface{}{
		"method": method,
		"filters": [][]interface{}{
			{"object_uuid", "=", uuid},
			{"event_type", "in", containerEventTypes},
		},
	}
}

// Subscribe arranges for events about uuid to be sent to ch. Each
// Subscribe call must be matched by an Unsubscribe call.
func (ec *eventClient) Subscribe(ch chan<- containerEvent, uuid string) {
	ec.mtx.Lock()
	defer ec.mtx.Unlock()
	if ec.subscribers == nil {
		ec.subscribers = map[string]map[chan<- containerEvent]int{}
		ec.closing = make(chan struct{})
		go ec.run()
	}
	chans := ec.subscribers[uuid]
	if chans == nil {
		chans = map[chan<- containerEvent]int{}
		ec.subscribers[uuid] = chans
	}
	first := len(chans) == 0
	chans[ch]++
	if first && ec.conn != nil {
		go json.NewEncoder(ec.conn).Encode(subscribeRequest("subscribe", uuid))
	}
}

func (ec *eventClient) Unsubscribe(ch chan<- containerEvent, uuid string) {
	ec.mtx.Lock()
	defer ec.mtx.Unlock()
	chans := ec.subscribers[uuid]
	switch n := chans[ch] - 1; {
	case n > 0:
		chans[ch] = n
	case n == 0:
		delete(chans, ch)
		if len(chans) > 0 {
			return
		}
		delete(ec.subscribers, uuid)
		if ec.conn != nil {
			go json.NewEncoder(ec.conn).Encode(subscribeRequest("unsubscribe", uuid))
		}
	}
}

func (ec *eventClient) Close() {
	ec.mtx.Lock()
	defer ec.mtx.Unlock()
	if ec.subscribers != nil {
		ec.subscribers = nil
		close(ec.closing)
	}
}

func (ec *eventClient) dial() (*websocket.Conn, error) {
	var cluster arvados.Cluster
	err := ec.RequestAndDecode(&cluster, "GET", arvados.EndpointConfigGet.Path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("error getting cluster config: %w", err)
	}
	wsURL := cluster.Services.Websocket.ExternalURL
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	wsURL.Path = "/websocket"
	logURL := wsURL.String()
	wsURL.RawQuery = url.Values{"api_token": []string{ec.AuthToken}}.Encode()
	conn, err := websocket.Dial(wsURL.String(), "", cluster.Services.Controller.ExternalURL.String())
	if err != nil {
		return nil, fmt.Errorf("websocket connection error: %w", err)
	}
	log.WithField("URL", logURL).Info("connected to websocket")
	return conn, nil
}

func (ec *eventClient) run() {
	for {
		conn, err := ec.dial()
		if err != nil {
			log.Warn(err)
			select {
			case <-ec.closing:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		ec.mtx.Lock()
		ec.conn = conn
		var resubscribe []string
		for uuid := range ec.subscribers {
			resubscribe = append(resubscribe, uuid)
		}
		ec.mtx.Unlock()
		go func() {
			enc := json.NewEncoder(conn)
			for _, uuid := range resubscribe {
				enc.Encode(subscribeRequest("subscribe", uuid))
			}
		}()

		if done := ec.relay(conn); done {
			return
		}
	}
}

// relay forwards events from conn until it fails (returning false) or
// the client is closed (returning true).
func (ec *eventClient) relay(conn *websocket.Conn) bool {
	dec := json.NewDecoder(conn)
	for {
		var msg containerEvent
		err := dec.Decode(&msg)
		select {
		case <-ec.closing:
			return true
		default:
		}
		if err != nil {
			log.Warnf("error decoding websocket message: %s", err)
			ec.mtx.Lock()
			ec.conn = nil
			ec.mtx.Unlock()
			go conn.Close()
			return false
		}
		ec.mtx.Lock()
		for ch := range ec.subscribers[msg.ObjectUUID] {
			ch := ch
			go func() { ch <- msg }()
		}
		ec.mtx.Unlock()
	}
}

var refreshTicker = time.NewTicker(5 * time.Second)

// arvadosContainerRunner runs this program (or Prog) with Args in an
// Arvados container and returns the output collection UUID.
type arvadosContainerRunner struct {
	Client      *arvados.Client
	Name        string
	OutputName  string
	ProjectUUID string
	APIAccess   bool
	VCPUs       int
	RAM         int64
	Prog        string // if empty, upload and run the current executable
	Args        []string
	Mounts      map[string]map[string]interface{}
	Priority    int
	KeepCache   int // cache buffers per VCPU (0 for default)
	Preemptible bool
}

func (runner *arvadosContainerRunner) Run() (string, error) {
	return runner.RunContext(context.Background())
}

func (runner *arvadosContainerRunner) mounts() (map[string]map[string]interface{}, string, error) {
	mounts := map[string]map[string]interface{}{
		"/mnt/output": {
			"kind":     "collection",
			"writable": true,
		},
	}
	for path, mnt := range runner.Mounts {
		mounts[path] = mnt
	}
	prog := runner.Prog
	if prog == "" {
		prog = "/mnt/cmd/" + binaryName
		cmdUUID, err := runner.uploadBinary()
		if err != nil {
			return nil, "", err
		}
		mounts["/mnt/cmd"] = map[string]interface{}{
			"kind": "collection",
			"uuid": cmdUUID,
		}
	}
	return mounts, prog, nil
}

func (runner *arvadosContainerRunner) RunContext(ctx context.Context) (string, error) {
	if runner.ProjectUUID == "" {
		return "", errors.New("cannot run arvados container: ProjectUUID not provided")
	}
	mounts, prog, err := runner.mounts()
	if err != nil {
		return "", err
	}
	priority := runner.Priority
	if priority < 1 {
		priority = 500
	}
	keepCache := runner.KeepCache
	if keepCache < 1 {
		keepCache = 2
	}
	rc := arvados.RuntimeConstraints{
		API:          runner.APIAccess,
		VCPUs:        runner.VCPUs,
		RAM:          runner.RAM,
		KeepCacheRAM: (1 << 26) * int64(keepCache) * int64(runner.VCPUs),
	}
	var outname interface{}
	if runner.OutputName != "" {
		outname = runner.OutputName
	}
	var cr arvados.ContainerRequest
	err = runner.Client.RequestAndDecodeContext(ctx, &cr, "POST", "arvados/v1/container_requests", nil, map[string]interface{}{
		"container_request": map[string]interface{}{
			"owner_uuid":          runner.ProjectUUID,
			"name":                runner.Name,
			"container_image":     runtimeImage,
			"command":             append([]string{prog}, runner.Args...),
			"mounts":              mounts,
			"use_existing":        true,
			"output_path":         "/mnt/output",
			"output_name":         outname,
			"runtime_constraints": rc,
			"priority":            priority,
			"state":               arvados.ContainerRequestStateCommitted,
			"scheduling_parameters": arvados.SchedulingParameters{
				Preemptible: runner.Preemptible,
				Partitions:  []string{},
			},
			"environment": map[string]string{
				"GOMAXPROCS": fmt.Sprintf("%d", rc.VCPUs),
			},
			"container_count_max": 1,
		},
	})
	if err != nil {
		return "", err
	}
	logger := log.WithField("ContainerRequest", cr.UUID)
	logger.WithField("Container", cr.ContainerUUID).Info("submitted container request")

	err = runner.wait(ctx, &cr, logger)
	if err != nil {
		return "", err
	}

	var c arvados.Container
	err = runner.Client.RequestAndDecode(&c, "GET", "arvados/v1/containers/"+cr.ContainerUUID, nil, nil)
	if err != nil {
		return "", err
	} else if c.State != arvados.ContainerStateComplete {
		return "", fmt.Errorf("container did not complete: %s", c.State)
	} else if c.ExitCode != 0 {
		return "", fmt.Errorf("container exited %d", c.ExitCode)
	}
	return cr.OutputUUID, nil
}

// containerLogs follows the stderr and crunchstat logs of a
// container request.
type containerLogs struct {
	client      *arvados.Client
	cr          *arvados.ContainerRequest
	logger      log.FieldLogger
	offset      map[string]int64
	needNewline string
}

var reCrunchstatRSS = regexp.MustCompile(`mem .* (\d+) rss`)

func (cl *containerLogs) newline() {
	fmt.Fprint(os.Stderr, cl.needNewline)
	cl.needNewline = ""
}

// poll copies new log lines to the logger and reports whether any
// were found.
func (cl *containerLogs) poll() bool {
	found := false
	for _, fnm := range []string{"stderr.txt", "crunchstat.txt"} {
		req, err := http.NewRequest("GET", "https://"+cl.client.APIHost+"/arvados/v1/container_requests/"+cl.cr.UUID+"/log/"+cl.cr.ContainerUUID+"/"+fnm, nil)
		if err != nil {
			cl.logger.Errorf("error preparing log request: %s", err)
			continue
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", cl.offset[fnm]))
		resp, err := cl.client.Do(req)
		if err != nil {
			cl.logger.Errorf("error getting log data: %s", err)
			continue
		}
		logdata, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if (resp.StatusCode == http.StatusNotFound && cl.offset[fnm] == 0) ||
			(resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && cl.offset[fnm] > 0) {
			continue
		} else if resp.StatusCode >= 300 {
			cl.logger.Errorf("error getting log data: %s", resp.Status)
			continue
		} else if err != nil {
			cl.logger.Errorf("error reading log data: %s", err)
			continue
		}
		for {
			eol := bytes.IndexByte(logdata, '\n')
			if eol < 0 {
				break
			}
			line := string(logdata[:eol])
			logdata = logdata[eol+1:]
			cl.offset[fnm] += int64(eol + 1)
			if line == "" {
				continue
			}
			found = true
			if fnm == "stderr.txt" {
				cl.newline()
				log.Print(line)
			} else if m := reCrunchstatRSS.FindStringSubmatch(line); m != nil {
				rss, _ := strconv.ParseInt(m[1], 10, 64)
				fmt.Fprintf(os.Stderr, "%s rss %.3f GB           \r", cl.cr.UUID, float64(rss)/1e9)
				cl.needNewline = "\n"
			}
		}
	}
	return found
}

// wait follows cr until it is final or ctx is cancelled, in which
// case the request is cancelled too.
func (runner *arvadosContainerRunner) wait(ctx context.Context, cr *arvados.ContainerRequest, logger log.FieldLogger) error {
	events := make(chan containerEvent)
	ec := eventClient{Client: runner.Client}
	defer ec.Close()
	subscribed := ""
	defer func() {
		if subscribed != "" {
			ec.Unsubscribe(events, subscribed)
		}
	}()

	logs := &containerLogs{client: runner.Client, cr: cr, logger: logger, offset: map[string]int64{}}
	lastState := cr.State
	refresh := func() {
		ctx, cancel := context.WithDeadline(ctx, time.Now().Add(time.Minute))
		defer cancel()
		err := runner.Client.RequestAndDecodeContext(ctx, cr, "GET", "arvados/v1/container_requests/"+cr.UUID, nil, nil)
		if err != nil {
			logs.newline()
			logger.Warnf("error getting container request: %s", err)
			return
		}
		if lastState != cr.State {
			logs.newline()
			logger.WithField("State", cr.State).Info("container request state changed")
			lastState = cr.State
		}
		if subscribed != cr.ContainerUUID {
			logs.newline()
			if subscribed != "" {
				ec.Unsubscribe(events, subscribed)
			}
			logger.WithField("Container", cr.ContainerUUID).Debug("subscribing to container events")
			ec.Subscribe(events, cr.ContainerUUID)
			subscribed = cr.ContainerUUID
			logs.offset = map[string]int64{}
		}
	}

	const logWaitMin, logWaitMax = time.Second, 10 * time.Second
	logWait := logWaitMin
	logTimer := time.After(logWait)
	for cr.State != arvados.ContainerRequestStateFinal {
		select {
		case <-ctx.Done():
			err := runner.Client.RequestAndDecode(cr, "PATCH", "arvados/v1/container_requests/"+cr.UUID, nil, map[string]interface{}{
				"container_request": map[string]interface{}{
					"priority": 0,
				},
			})
			if err != nil {
				logger.Errorf("error cancelling container request: %s", err)
			}
			logs.newline()
			return ctx.Err()
		case <-refreshTicker.C:
			refresh()
		case msg := <-events:
			if msg.EventType == "update" {
				refresh()
			}
		case <-logTimer:
			if logs.poll() {
				logWait = logWaitMin
			} else if logWait *= 2; logWait > logWaitMax {
				logWait = logWaitMax
			}
			logTimer = time.After(logWait)
		}
	}
	logs.newline()
	return nil
}

var collectionInPathRe = regexp.MustCompile(`^(.*/)?([0-9a-f]{32}\+[0-9]+|[0-9a-z]{5}-[0-9a-z]{5}-[0-9a-z]{15})(/.*)?$`)

// TranslatePaths replaces each collection path with the
// corresponding path inside the container and adds the needed
// mounts. Empty paths and "-" are left alone.
func (runner *arvadosContainerRunner) TranslatePaths(paths ...*string) error {
	if runner.Mounts == nil {
		runner.Mounts = make(map[string]map[string]interface{})
	}
	for _, path := range paths {
		if *path == "" || *path == "-" {
			continue
		}
		m := collectionInPathRe.FindStringSubmatch(*path)
		if m == nil {
			return fmt.Errorf("cannot find uuid in path: %q", *path)
		}
		collID := m[2]
		if _, ok := runner.Mounts["/mnt/"+collID]; !ok {
			mnt := map[string]interface{}{"kind": "collection"}
			if len(collID) == 27 {
				mnt["uuid"] = collID
			} else {
				mnt["portable_data_hash"] = collID
			}
			runner.Mounts["/mnt/"+collID] = mnt
		}
		*path = "/mnt/" + collID + m[3]
	}
	return nil
}

var mtxUploadBinary sync.Mutex

// uploadBinary stores the running executable in a collection, reusing
// an existing collection with the same name and blake2b hash.
func (runner *arvadosContainerRunner) uploadBinary() (string, error) {
	mtxUploadBinary.Lock()
	defer mtxUploadBinary.Unlock()
	exe, err := ioutil.ReadFile("/proc/self/exe")
	if err != nil {
		return "", err
	}
	hash := fmt.Sprintf("%x", blake2b.Sum256(exe))
	cname := binaryName + " " + cmd.Version.String()
	logger := log.WithFields(log.Fields{"Name": cname, "blake2b": hash})
	var existing arvados.CollectionList
	err = runner.Client.RequestAndDecode(&existing, "GET", "arvados/v1/collections", nil, arvados.ListOptions{
		Limit: 1,
		Count: "none",
		Filters: []arvados.Filter{
			{Attr: "name", Operator: "=", Operand: cname},
			{Attr: "owner_uuid", Operator: "=", Operand: runner.ProjectUUID},
			{Attr: "properties.blake2b", Operator: "=", Operand: hash},
		},
	})
	if err != nil {
		return "", err
	}
	if len(existing.Items) > 0 {
		logger.WithField("UUID", existing.Items[0].UUID).Info("using existing binary collection")
		return existing.Items[0].UUID, nil
	}
	ac, err := arvadosclient.New(runner.Client)
	if err != nil {
		return "", err
	}
	var coll arvados.Collection
	fs, err := coll.FileSystem(runner.Client, keepclient.New(ac))
	if err != nil {
		return "", err
	}
	f, err := fs.OpenFile(binaryName, os.O_CREATE|os.O_WRONLY, 0777)
	if err != nil {
		return "", err
	}
	_, err = f.Write(exe)
	if err != nil {
		return "", err
	}
	err = f.Close()
	if err != nil {
		return "", err
	}
	mtxt, err := fs.MarshalManifest(".")
	if err != nil {
		return "", err
	}
	err = runner.Client.RequestAndDecode(&coll, "POST", "arvados/v1/collections", nil, map[string]interface{}{
		"collection": map[string]interface{}{
			"owner_uuid":    runner.ProjectUUID,
			"manifest_text": mtxt,
			"name":          cname,
			"properties": map[string]interface{}{
				"blake2b": hash,
			},
		},
	})
	if err != nil {
		return "", err
	}
	logger.WithField("UUID", coll.UUID).Info("stored binary in new collection")
	return coll.UUID, nil
}

// zopen opens fnm (through the Arvados API for collection paths, if
// configured), decompressing it if the name ends in ".gz".
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := open(fnm)
	if err != nil || !strings.HasSuffix(fnm, ".gz") {
		return f, err
	}
	rdr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4*1024*1024))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipr{rdr, f}, nil
}

// gzipr closes both the decompressor and the underlying file.
type gzipr struct {
	io.ReadCloser
	io.Closer
}

func (gr gzipr) Close() error {
	e1 := gr.ReadCloser.Close()
	e2 := gr.Closer.Close()
	if e1 != nil {
		return e1
	}
	return e2
}

var (
	keepClient *keepclient.KeepClient
	siteFS     arvados.CustomFileSystem
	siteFSMtx  sync.Mutex
)

func open(fnm string) (io.ReadCloser, error) {
	if fnm == "-" {
		return ioutil.NopCloser(os.Stdin), nil
	}
	if os.Getenv("ARVADOS_API_HOST") == "" {
		return os.Open(fnm)
	}
	m := collectionInPathRe.FindStringSubmatch(fnm)
	if m == nil {
		return os.Open(fnm)
	}
	collectionID, collectionPath := m[2], m[3]

	siteFSMtx.Lock()
	defer siteFSMtx.Unlock()
	if siteFS == nil {
		log.Info("setting up Arvados client")
		client := arvados.NewClientFromEnv()
		ac, err := arvadosclient.New(client)
		if err != nil {
			return nil, err
		}
		ac.Client = arvados.DefaultSecureClient
		keepClient = keepclient.New(ac)
		keepClient.HTTPClient = arvados.DefaultSecureClient
		keepClient.BlockCache = &keepclient.BlockCache{MaxBlocks: 4}
		siteFS = client.SiteFileSystem(keepClient)
	} else {
		keepClient.BlockCache.MaxBlocks += 2
	}

	log.WithFields(log.Fields{"path": collectionPath, "collection": collectionID}).Info("reading from Arvados")
	f, err := siteFS.Open("by_id/" + collectionID + collectionPath)
	if err != nil {
		return nil, err
	}
	return &reduceCacheOnClose{File: f}, nil
}

type reduceCacheOnClose struct {
	http.File
	once sync.Once
}

func (rc *reduceCacheOnClose) Close() error {
	rc.once.Do(func() {
		siteFSMtx.Lock()
		keepClient.BlockCache.MaxBlocks -= 2
		siteFSMtx.Unlock()
	})
	return rc.File.Close()
}
