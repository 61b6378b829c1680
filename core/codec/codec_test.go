package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"musichud/model"

	"github.com/google/uuid"
)

func sampleTrack() model.Track {
	return model.Track{
		Name: "晴天",
		ID:   186016,
		Artists: []model.Artist{
			{ID: 6452, Name: "周杰伦"},
			{ID: 1, Name: "Guest"},
		},
		Alias:          []string{"Sunny Day"},
		Album:          model.Album{ID: 18905, Name: "叶惠美", PicURL: "http://p1.music.126.net/a.jpg", PicSize: 109951163},
		DurationMillis: 269000,
		Translations:   []string{"Sunny"},
		Pusher: model.Pusher{
			UID:        42,
			ClientUUID: uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
			Name:       "Steve",
		},
		Resource: model.Resource{
			ID:      186016,
			URL:     "http://m701.music.126.net/x.flac",
			Bitrate: 999000,
			Size:    33554432,
			Format:  model.FormatFLAC,
			MD5:     "d41d8cd98f00b204e9800998ecf8427e",
			Fee:     model.FeeVIP,
			Time:    269,
			Lyrics: model.LyricInfo{
				Main:       model.Lyric{Version: 7, Text: "[00:01.00]故事的小黄花"},
				Translated: model.NoLyric,
			},
		},
	}
}

func roundTrip[T any](t *testing.T, v T, write func(*Writer, T), read func(*Reader) (T, error)) T {
	t.Helper()
	w := NewWriter()
	write(w, v)
	r := NewReader(w.Bytes())
	got, err := read(r)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected buffer fully consumed, %d bytes left", r.Remaining())
	}
	return got
}

func TestVarInt(t *testing.T) {
	t.Run("boundary sizes", func(t *testing.T) {
		cases := []struct {
			value int32
			size  int
		}{
			{0, 1}, {1, 1}, {127, 1}, {128, 2}, {16383, 2}, {16384, 3},
			{2097151, 3}, {2097152, 4}, {268435455, 4}, {268435456, 5}, {2147483647, 5}, {-1, 5},
		}
		for _, c := range cases {
			w := NewWriter()
			w.WriteVarInt(c.value)
			if w.Len() != c.size {
				t.Errorf("expected %d to encode in %d bytes, got %d", c.value, c.size, w.Len())
			}
			got, err := NewReader(w.Bytes()).ReadVarInt()
			if err != nil {
				t.Fatalf("decode %d: %v", c.value, err)
			}
			if got != c.value {
				t.Errorf("expected %d, got %d", c.value, got)
			}
		}
	})

	t.Run("known bytes", func(t *testing.T) {
		w := NewWriter()
		w.WriteVarInt(300)
		if !reflect.DeepEqual(w.Bytes(), []byte{0xac, 0x02}) {
			t.Errorf("expected [ac 02], got % x", w.Bytes())
		}
	})

	t.Run("too long", func(t *testing.T) {
		_, err := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}).ReadVarInt()
		if !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("expected ErrMalformedPacket, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := NewReader([]byte{0x80}).ReadVarInt()
		if !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("expected ErrMalformedPacket, got %v", err)
		}
	})
}

func TestString(t *testing.T) {
	t.Run("utf8 round trip", func(t *testing.T) {
		got := roundTrip(t, "投票切歌通过", func(w *Writer, s string) { w.WriteString(s) }, (*Reader).ReadString)
		if got != "投票切歌通过" {
			t.Errorf("expected 投票切歌通过, got %q", got)
		}
	})

	t.Run("length over max", func(t *testing.T) {
		w := NewWriter()
		w.WriteVarInt(MaxStringLength + 1)
		w.WriteRaw(make([]byte, MaxStringLength+1))
		if _, err := NewReader(w.Bytes()).ReadString(); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("expected ErrMalformedPacket, got %v", err)
		}
	})

	t.Run("length over remaining", func(t *testing.T) {
		w := NewWriter()
		w.WriteVarInt(10)
		w.WriteRaw([]byte("abc"))
		if _, err := NewReader(w.Bytes()).ReadString(); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("expected ErrMalformedPacket, got %v", err)
		}
	})
}

func TestFixedWidth(t *testing.T) {
	w := NewWriter()
	w.WriteInt64(0x0102030405060708)
	w.WriteInt32(-2)
	w.WriteBool(true)
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	w.WriteUUID(id)

	want := []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		0xff, 0xff, 0xff, 0xfe,
		1,
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
	}
	if !reflect.DeepEqual(w.Bytes(), want) {
		t.Fatalf("expected % x, got % x", want, w.Bytes())
	}

	r := NewReader(w.Bytes())
	if v, _ := r.ReadInt64(); v != 0x0102030405060708 {
		t.Errorf("expected int64 0x0102030405060708, got %#x", v)
	}
	if v, _ := r.ReadInt32(); v != -2 {
		t.Errorf("expected int32 -2, got %d", v)
	}
	if v, _ := r.ReadBool(); !v {
		t.Error("expected true")
	}
	if v, _ := r.ReadUUID(); v != id {
		t.Errorf("expected %s, got %s", id, v)
	}
}

func TestEnumFallback(t *testing.T) {
	w := NewWriter()
	w.WriteVarInt(99)
	got, err := NewReader(w.Bytes()).ReadEnum(model.FormatTypeCount)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if model.FormatType(got) != model.FormatFLAC {
		t.Errorf("expected first declared value FLAC, got %v", model.FormatType(got))
	}

	res := model.NoResource
	w = NewWriter()
	WriteResource(w, res)
	data := w.Bytes()
	// id(8) + url(1) + bitrate(4) + size(8) 之后是 format 序号
	data[21] = 0x7f
	decoded, err := ReadResource(NewReader(data))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if decoded.Format != model.FormatFLAC {
		t.Errorf("expected FLAC fallback, got %v", decoded.Format)
	}
}

func TestLongArray(t *testing.T) {
	t.Run("unbounded shape", func(t *testing.T) {
		w := NewWriter()
		w.WriteLongArray([]int64{1, -2, 3})
		got, err := NewReader(w.Bytes()).ReadLongArray()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !reflect.DeepEqual(got, []int64{1, -2, 3}) {
			t.Errorf("expected [1 -2 3], got %v", got)
		}
	})

	t.Run("length beyond remaining", func(t *testing.T) {
		w := NewWriter()
		w.WriteVarInt(3)
		w.WriteInt64(1)
		w.WriteInt64(2)
		if _, err := NewReader(w.Bytes()).ReadLongArray(); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("expected ErrMalformedPacket, got %v", err)
		}
	})

	t.Run("bounded shape", func(t *testing.T) {
		w := NewWriter()
		w.WriteBoundedLongArray([]int64{7, 8}, 16)
		got, err := NewReader(w.Bytes()).ReadBoundedLongArray()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !reflect.DeepEqual(got, []int64{7, 8}) {
			t.Errorf("expected [7 8], got %v", got)
		}
	})

	t.Run("bounded shape over max", func(t *testing.T) {
		w := NewWriter()
		w.WriteBoundedLongArray([]int64{7, 8, 9}, 2)
		if _, err := NewReader(w.Bytes()).ReadBoundedLongArray(); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("expected ErrMalformedPacket, got %v", err)
		}
	})
}

func TestTime(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	ts := time.Date(2024, time.February, 29, 23, 59, 58, 123456789, loc)
	w := NewWriter()
	w.WriteTime(ts)
	if w.Len() != 6*4+4+len("Asia/Shanghai") {
		t.Fatalf("unexpected encoded size %d", w.Len())
	}
	got, err := NewReader(w.Bytes()).ReadTime()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(ts.Truncate(time.Second)) {
		t.Errorf("expected %v, got %v", ts.Truncate(time.Second), got)
	}
	if got.Location().String() != "Asia/Shanghai" {
		t.Errorf("expected zone Asia/Shanghai, got %s", got.Location())
	}

	t.Run("offset zone", func(t *testing.T) {
		w := NewWriter()
		for _, v := range []int32{2023, 1, 2, 3, 4, 5} {
			w.WriteInt32(v)
		}
		w.WriteInt32(6)
		w.WriteRaw([]byte("+08:00"))
		got, err := NewReader(w.Bytes()).ReadTime()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if _, offset := got.Zone(); offset != 8*3600 {
			t.Errorf("expected offset 28800, got %d", offset)
		}
	})

	t.Run("prefixed offset zones", func(t *testing.T) {
		tests := []struct {
			zone   string
			offset int
		}{
			{"GMT+08:00", 8 * 3600},
			{"UTC+8", 8 * 3600},
			{"UT-05:30", -(5*3600 + 30*60)},
			{"GMT", 0},
			{"UTC", 0},
		}
		for _, tt := range tests {
			t.Run(tt.zone, func(t *testing.T) {
				w := NewWriter()
				for _, v := range []int32{2023, 1, 2, 3, 4, 5} {
					w.WriteInt32(v)
				}
				w.WriteInt32(int32(len(tt.zone)))
				w.WriteRaw([]byte(tt.zone))
				encoded := w.Bytes()

				got, err := NewReader(encoded).ReadTime()
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if _, offset := got.Zone(); offset != tt.offset {
					t.Errorf("expected offset %d, got %d", tt.offset, offset)
				}
				again := NewWriter()
				again.WriteTime(got)
				if !bytes.Equal(again.Bytes(), encoded) {
					t.Errorf("expected re-encoding to keep zone %q, got %q", tt.zone, again.Bytes()[24:])
				}
			})
		}
	})

	t.Run("bad prefixed offset", func(t *testing.T) {
		w := NewWriter()
		for _, v := range []int32{2023, 1, 2, 3, 4, 5} {
			w.WriteInt32(v)
		}
		w.WriteInt32(6)
		w.WriteRaw([]byte("GMT+xx"))
		if _, err := NewReader(w.Bytes()).ReadTime(); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("expected ErrMalformedPacket, got %v", err)
		}
	})

	t.Run("invalid day", func(t *testing.T) {
		w := NewWriter()
		for _, v := range []int32{2023, 2, 30, 0, 0, 0} {
			w.WriteInt32(v)
		}
		w.WriteInt32(3)
		w.WriteRaw([]byte("UTC"))
		if _, err := NewReader(w.Bytes()).ReadTime(); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("expected ErrMalformedPacket, got %v", err)
		}
	})
}

func TestRecordRoundTrip(t *testing.T) {
	t.Run("track", func(t *testing.T) {
		want := sampleTrack()
		got := roundTrip(t, want, WriteTrack, ReadTrack)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("none track", func(t *testing.T) {
		got := roundTrip(t, model.NoTrack, WriteTrack, ReadTrack)
		if !reflect.DeepEqual(got, model.NoTrack) {
			t.Errorf("expected NONE, got %+v", got)
		}
		if !got.IsNone() {
			t.Error("expected decoded track to be NONE")
		}
	})

	t.Run("track list", func(t *testing.T) {
		want := []model.Track{sampleTrack(), model.NoTrack}
		got := roundTrip(t, want, WriteTracks, ReadTracks)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("playlist", func(t *testing.T) {
		want := model.Playlist{
			ID:            3778678,
			Name:          "云音乐热歌榜",
			CoverImgID:    109951163,
			CoverImgIDStr: "109951163",
			CoverImgURL:   "http://p1.music.126.net/c.jpg",
			Creator:       model.Profile{Nickname: "网易云音乐", AvatarURL: "a", BackgroundURL: "b", UserID: 1},
			Tracks:        []model.Track{sampleTrack()},
		}
		got := roundTrip(t, want, WritePlaylist, ReadPlaylist)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("empty playlist", func(t *testing.T) {
		got := roundTrip(t, model.NoPlaylist, WritePlaylist, ReadPlaylist)
		if !reflect.DeepEqual(got, model.NoPlaylist) {
			t.Errorf("expected %+v, got %+v", model.NoPlaylist, got)
		}
	})

	t.Run("profile sentinel", func(t *testing.T) {
		got := roundTrip(t, model.AnonymousProfile, WriteProfile, ReadProfile)
		if got != model.AnonymousProfile {
			t.Errorf("expected ANONYMOUS, got %+v", got)
		}
	})

	t.Run("pusher sentinel", func(t *testing.T) {
		got := roundTrip(t, model.EmptyPusher, WritePusher, ReadPusher)
		if !got.IsEmpty() {
			t.Errorf("expected EMPTY, got %+v", got)
		}
	})

	t.Run("version", func(t *testing.T) {
		got := roundTrip(t, model.CurrentVersion, WriteVersion, ReadVersion)
		if got != model.CurrentVersion {
			t.Errorf("expected %s, got %s", model.CurrentVersion, got)
		}
	})

	t.Run("login cookie info", func(t *testing.T) {
		want := model.LoginCookieInfo{
			Type:        model.LoginQRCode,
			RawCookie:   "MUSIC_U=abc; __csrf=def",
			GeneratedAt: time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
		}
		got := roundTrip(t, want, WriteLoginCookieInfo, ReadLoginCookieInfo)
		if got.Type != want.Type || got.RawCookie != want.RawCookie || !got.GeneratedAt.Equal(want.GeneratedAt) {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("unknown login type", func(t *testing.T) {
		w := NewWriter()
		w.WriteString("PASSKEY")
		w.WriteString("")
		w.WriteTime(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
		got, err := ReadLoginCookieInfo(NewReader(w.Bytes()))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != model.LoginUnlogged {
			t.Errorf("expected UNLOGGED, got %s", got.Type)
		}
	})
}

func TestVersionDecode(t *testing.T) {
	t.Run("wrong arity", func(t *testing.T) {
		w := NewWriter()
		w.WriteLongArray([]int64{1, 0, 0})
		if _, err := ReadVersion(NewReader(w.Bytes())); !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("expected ErrMalformedPacket, got %v", err)
		}
	})

	t.Run("unknown build maps to stable", func(t *testing.T) {
		w := NewWriter()
		w.WriteLongArray([]int64{1, 0, 1, 9})
		got, err := ReadVersion(NewReader(w.Bytes()))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Build != model.BuildStable {
			t.Errorf("expected STABLE, got %s", got.Build)
		}
	})
}

func TestListTruncated(t *testing.T) {
	w := NewWriter()
	w.WriteInt32(2)
	WriteArtist(w, model.Artist{ID: 1, Name: "a"})
	if _, err := ReadList(NewReader(w.Bytes()), ReadArtist); !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("expected ErrMalformedPacket, got %v", err)
	}

	w = NewWriter()
	w.WriteInt32(-1)
	if _, err := ReadList(NewReader(w.Bytes()), ReadArtist); !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("expected ErrMalformedPacket for negative length, got %v", err)
	}
}
