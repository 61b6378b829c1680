package model

import "fmt"

// BuildType 构建成熟度，按声明顺序递增
type BuildType int64

const (
	BuildAlpha BuildType = iota
	BuildBeta
	BuildPreRelease
	BuildStable
)

var buildNames = [...]string{"ALPHA", "BETA", "PRE_RELEASE", "STABLE"}

func (b BuildType) String() string {
	if b < 0 || int(b) >= len(buildNames) {
		return "UNKNOWN"
	}
	return buildNames[b]
}

// BuildTypeFromOrdinal 越界时视为 STABLE
func BuildTypeFromOrdinal(ordinal int64) BuildType {
	if ordinal < 0 || ordinal >= int64(len(buildNames)) {
		return BuildStable
	}
	return BuildType(ordinal)
}

// Version 协议版本
type Version struct {
	Major int64     `json:"major"`
	Minor int64     `json:"minor"`
	Patch int64     `json:"patch"`
	Build BuildType `json:"build"`
}

var (
	// CurrentVersion 服务端版本
	CurrentVersion = Version{Major: 1, Minor: 0, Patch: 2, Build: BuildStable}
	// LeastCapableVersion 可兼容的最低客户端版本
	LeastCapableVersion = Version{Major: 1, Minor: 0, Patch: 0, Build: BuildStable}
)

// Compare 按 (major, minor, patch, build) 字典序比较
func (v Version) Compare(other Version) int {
	a := v.Longs()
	b := other.Longs()
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Capable 客户端版本是否满足最低要求
func (v Version) Capable() bool {
	return v.Compare(LeastCapableVersion) >= 0
}

// Longs 转为线上格式使用的四元组
func (v Version) Longs() []int64 {
	return []int64{v.Major, v.Minor, v.Patch, int64(v.Build)}
}

// VersionFromLongs 从四元组还原版本
func VersionFromLongs(values []int64) (Version, error) {
	if len(values) != 4 {
		return Version{}, fmt.Errorf("invalid version length %d", len(values))
	}
	return Version{
		Major: values[0],
		Minor: values[1],
		Patch: values[2],
		Build: BuildTypeFromOrdinal(values[3]),
	}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d-%s", v.Major, v.Minor, v.Patch, v.Build)
}
