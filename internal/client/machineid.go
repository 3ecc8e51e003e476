package client

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// MachineID возвращает идентификатор машины: SHA-256 от стабильных признаков
// хоста (имя, ОС, архитектура, MAC первого физического интерфейса). Если
// признаки собрать не удалось, возвращается хэш случайного UUID.
func MachineID() string {
	parts, ok := hostFacts()
	if !ok {
		return hashParts(uuid.NewString())
	}
	return hashParts(parts...)
}

func hostFacts() ([]string, bool) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return nil, false
	}
	return []string{hostname, runtime.GOOS, runtime.GOARCH, primaryMAC()}, true
}

// primaryMAC первый не-loopback интерфейс с аппаратным адресом в порядке,
// который отдаёт ОС. Пустая строка, если таких нет.
func primaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}

func hashParts(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
