package isapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/icholy/digest"
)

const (
	testUser     = "admin"
	testPassword = "secret"
	testRealm    = "DS-7608"
	testNonce    = "4e6a4d304e7a5131"
	isapiNS      = "http://www.hikvision.com/ver20/XMLSchema"
)

// fakeNVR serves the subset of ISAPI used for retrieval
type fakeNVR struct {
	auth     AuthType
	timeZone string
	payload  []byte
	latency  time.Duration // delay before each download response

	mu             sync.Mutex
	pages          [][]string // playback URIs returned per search request
	searchStatus   map[int]int
	searchStarts   []string
	searchTrackIDs []string
	downloadStatus []int // status per download attempt, 200 afterwards
	downloads      []string
	reboots        int
	events         []nvrEvent

	server *httptest.Server
}

// nvrEvent marks when a handler ran: "download" on arrival, "served" once the
// download response is about to be written, "reboot" on a reboot request.
type nvrEvent struct {
	kind string
	at   time.Time
}

func newFakeNVR(t *testing.T, auth AuthType) *fakeNVR {
	t.Helper()
	gin.SetMode(gin.TestMode)

	nvr := &fakeNVR{
		auth:         auth,
		timeZone:     "CST+0:00:00",
		payload:      []byte("\x00\x00\x00\x18ftypmp42fake-video-payload"),
		searchStatus: map[int]int{},
	}

	router := gin.New()
	switch auth {
	case AuthBasic:
		router.Use(gin.BasicAuthForRealm(gin.Accounts{testUser: testPassword}, testRealm))
	case AuthDigest:
		router.Use(digestAuthMiddleware)
	}

	router.GET(timePath, nvr.handleTime)
	router.POST(searchPath, nvr.handleSearch)
	router.GET(downloadPath, nvr.handleDownload)
	router.PUT(rebootPath, nvr.handleReboot)
	router.GET(deviceInfoPath, nvr.handleDeviceInfo)
	router.GET(videoInputsPath, nvr.handleVideoInputs)

	nvr.server = httptest.NewServer(router)
	t.Cleanup(nvr.server.Close)
	return nvr
}

func (n *fakeNVR) address() string {
	return strings.TrimPrefix(n.server.URL, "http://")
}

func (n *fakeNVR) client(t *testing.T) *Client {
	return n.clientWithConfig(t, testConfig(t))
}

func (n *fakeNVR) clientWithConfig(t *testing.T, config Config) *Client {
	return NewClientWithConfig(n.address(), testUser, testPassword, config)
}

func (n *fakeNVR) session(t *testing.T) *Session {
	t.Helper()
	session, err := n.client(t).Session(n.auth)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	return session
}

func (n *fakeNVR) stats() (searches, downloads, reboots int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.searchStarts), len(n.downloads), n.reboots
}

func (n *fakeNVR) record(kind string) {
	n.mu.Lock()
	n.events = append(n.events, nvrEvent{kind: kind, at: time.Now()})
	n.mu.Unlock()
}

// eventTimes returns the times of every recorded event of kind, in order
func (n *fakeNVR) eventTimes(kind string) []time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	var times []time.Time
	for _, e := range n.events {
		if e.kind == kind {
			times = append(times, e.at)
		}
	}
	return times
}

// testConfig keeps every delay tiny and writes into a temporary archive
func testConfig(t *testing.T) Config {
	config := DefaultConfig()
	config.Timeout = 2 * time.Second
	config.ArchiveRoot = t.TempDir()
	config.RebootTime = 2 * time.Second
	config.RebootGrace = 0
	config.PollInterval = 10 * time.Millisecond
	config.RetryDelay = time.Millisecond
	config.DownloadDelay = 0
	config.MaxRetries = 2
	config.StampMetadata = false
	return config
}

func (n *fakeNVR) handleTime(c *gin.Context) {
	writeXML(c, http.StatusOK, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Time version="2.0" xmlns="%s">
<timeMode>NTP</timeMode>
<localTime>2020-04-15T08:30:00+08:00</localTime>
<timeZone>%s</timeZone>
</Time>`, isapiNS, n.timeZone))
}

func (n *fakeNVR) handleSearch(c *gin.Context) {
	body, _ := c.GetRawData()
	doc, err := parseXML(body)
	if err != nil {
		writeStatus(c, http.StatusBadRequest, "Invalid XML Content", "badXmlContent")
		return
	}
	root := doc.Root()
	timeSpan := root.FindElement("timeSpanList/timeSpan")

	n.mu.Lock()
	index := len(n.searchStarts)
	n.searchStarts = append(n.searchStarts, childText(timeSpan, "startTime"))
	n.searchTrackIDs = append(n.searchTrackIDs, childText(root.SelectElement("trackIDList"), "trackID"))
	status, failed := n.searchStatus[index]
	var page []string
	if index < len(n.pages) {
		page = n.pages[index]
	}
	n.mu.Unlock()

	if failed {
		writeStatus(c, status, "Invalid Operation", "notSupport")
		return
	}
	writeXML(c, http.StatusOK, searchResult(page))
}

func (n *fakeNVR) handleDownload(c *gin.Context) {
	body, _ := c.GetRawData()
	uri := ""
	if doc, err := parseXML(body); err == nil {
		uri = childText(doc.Root(), "playbackURI")
	}
	if uri == "" {
		writeStatus(c, http.StatusBadRequest, "Invalid XML Content", "badXmlContent")
		return
	}

	n.record("download")
	n.mu.Lock()
	attempt := len(n.downloads)
	n.downloads = append(n.downloads, uri)
	status := http.StatusOK
	if attempt < len(n.downloadStatus) {
		status = n.downloadStatus[attempt]
	}
	n.mu.Unlock()

	time.Sleep(n.latency)
	n.record("served")
	if status != http.StatusOK {
		writeStatus(c, status, "Device Error", "deviceError")
		return
	}
	c.Data(http.StatusOK, "video/mp4", n.payload)
}

func (n *fakeNVR) handleReboot(c *gin.Context) {
	n.record("reboot")
	n.mu.Lock()
	n.reboots++
	n.mu.Unlock()
	writeStatus(c, http.StatusOK, "OK", "ok")
}

func (n *fakeNVR) handleDeviceInfo(c *gin.Context) {
	writeXML(c, http.StatusOK, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<DeviceInfo version="2.0" xmlns="%s">
<deviceName>Network Video Recorder</deviceName>
<model>DS-7608NI-K2</model>
<serialNumber>DS-7608NI-K20820190101CCWRC12345678WCVU</serialNumber>
<firmwareVersion>V4.22.005</firmwareVersion>
<macAddress>c0:56:e3:00:00:01</macAddress>
</DeviceInfo>`, isapiNS))
}

func (n *fakeNVR) handleVideoInputs(c *gin.Context) {
	writeXML(c, http.StatusOK, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<VideoInputChannelList version="2.0" xmlns="%s">
<VideoInputChannel><id>1</id><name>Front door</name><videoInputEnabled>true</videoInputEnabled></VideoInputChannel>
<VideoInputChannel><id>2</id><name>Garage</name><videoInputEnabled>false</videoInputEnabled></VideoInputChannel>
</VideoInputChannelList>`, isapiNS))
}

func writeXML(c *gin.Context, status int, body string) {
	c.Data(status, "application/xml; charset=UTF-8", []byte(body))
}

func writeStatus(c *gin.Context, status int, statusString, subStatusCode string) {
	writeXML(c, status, responseStatus(status, statusString, subStatusCode))
}

func responseStatus(status int, statusString, subStatusCode string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ResponseStatus version="2.0" xmlns="%s">
<requestURL>/ISAPI</requestURL>
<statusCode>%d</statusCode>
<statusString>%s</statusString>
<subStatusCode>%s</subStatusCode>
</ResponseStatus>`, isapiNS, status/100, statusString, subStatusCode)
}

func searchResult(uris []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<CMSearchResult version="2.0" xmlns="%s">
<searchID>C7F4E1A0-0000-0001-0000-000000000000</searchID>
<responseStatus>true</responseStatus>
`, isapiNS)
	if len(uris) == 0 {
		b.WriteString("<responseStatusStrg>NO MATCHES</responseStatusStrg>\n<numOfMatches>0</numOfMatches>\n")
	} else {
		fmt.Fprintf(&b, "<responseStatusStrg>OK</responseStatusStrg>\n<numOfMatches>%d</numOfMatches>\n<matchList>\n", len(uris))
		for _, uri := range uris {
			fmt.Fprintf(&b, `<searchMatchItem>
<sourceID>{0000000000-0000-0000-0000-000000000000}</sourceID>
<trackID>101</trackID>
<mediaSegmentDescriptor>
<contentType>video</contentType>
<codecType>H.264-BP</codecType>
<playbackURI>%s</playbackURI>
</mediaSegmentDescriptor>
</searchMatchItem>
`, xmlEscape(uri))
		}
		b.WriteString("</matchList>\n")
	}
	b.WriteString("</CMSearchResult>")
	return b.String()
}

func xmlEscape(s string) string {
	return strings.ReplaceAll(s, "&", "&amp;")
}

// playbackURIs returns n consecutive segments of length d starting at start
func playbackURIs(start time.Time, n int, d time.Duration) []string {
	uris := make([]string, 0, n)
	for i := 0; i < n; i++ {
		from := start.Add(time.Duration(i) * d)
		uris = append(uris, playbackURI(from, from.Add(d)))
	}
	return uris
}

func playbackURI(start, end time.Time) string {
	query := url.Values{}
	query.Set("starttime", start.UTC().Format("20060102T150405Z"))
	query.Set("endtime", end.UTC().Format("20060102T150405Z"))
	query.Set("name", fmt.Sprintf("%011d", start.Unix()%100000000000))
	query.Set("size", "1048576")
	return "rtsp://192.168.1.64/Streaming/tracks/101/?" + query.Encode()
}

// digestAuthMiddleware accepts only Digest credentials for testUser
func digestAuthMiddleware(c *gin.Context) {
	challenge := &digest.Challenge{Realm: testRealm, Nonce: testNonce, QOP: []string{"auth"}, Algorithm: "MD5"}
	if cred, err := digest.ParseCredentials(c.GetHeader("Authorization")); err == nil {
		want, err := digest.Digest(challenge, digest.Options{
			Method:   c.Request.Method,
			URI:      cred.URI,
			Count:    cred.Nc,
			Cnonce:   cred.Cnonce,
			Username: testUser,
			Password: testPassword,
		})
		if err == nil && cred.Username == testUser && cred.Nonce == testNonce && cred.Response == want.Response {
			c.Next()
			return
		}
	}
	c.Header("WWW-Authenticate", challenge.String())
	c.AbortWithStatus(http.StatusUnauthorized)
}
